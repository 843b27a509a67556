package sqlinline

const QSelectPendingPlanChange = `--sql 262e741c-72d6-40af-8ff7-d22711fdcac6
select user_id, current_plan, requested_plan, change_type, status, requested_at, effective_date, checkout_session
from pending_plan_changes
where user_id = $1::uuid;
`

const QInsertPendingPlanChange = `--sql a9d23b51-60dd-470b-b8bc-15852669c524
insert into pending_plan_changes(user_id, current_plan, requested_plan, change_type, status, requested_at, effective_date, checkout_session)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, now(), $6::timestamptz, $7::text)
returning requested_at;
`

const QDeletePendingPlanChange = `--sql 3eca5b0a-bf63-4d6f-a5c1-3a06ac6400fa
delete from pending_plan_changes
where user_id = $1::uuid;
`

const QSelectDuePlanChanges = `--sql f972fe0b-368d-4c8b-bd9e-b9e0a577049f
select user_id, current_plan, requested_plan, change_type, status, requested_at, effective_date, checkout_session
from pending_plan_changes
where status = 'scheduled' and effective_date <= $1::timestamptz
order by effective_date asc;
`
