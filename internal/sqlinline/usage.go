package sqlinline

const QSelectUsageRecord = `--sql 2db4f77c-ded7-4a48-8439-71c72cc35642
select user_id, year, month, plan, tokens_used, tokens_limit, quizzes_used, quizzes_limit, updated_at
from usage_records
where user_id = $1::uuid and year = $2::int and month = $3::int;
`

const QInsertUsageRecord = `--sql a21f2daa-5130-4125-bf56-91d69644565d
insert into usage_records(user_id, year, month, plan, tokens_used, tokens_limit, quizzes_used, quizzes_limit, updated_at)
values ($1::uuid, $2::int, $3::int, $4::text, 0, $5::bigint, 0, $6::bigint, now())
on conflict (user_id, year, month) do nothing;
`

const QIncrementTokensUsed = `--sql 9e66d10d-caba-40d3-920d-10af7817468f
update usage_records
set tokens_used = tokens_used + $4::bigint, updated_at = now()
where user_id = $1::uuid and year = $2::int and month = $3::int;
`

const QIncrementQuizzesUsed = `--sql 728a1ef8-fb0b-4388-9995-8f71fa46b2f0
update usage_records
set quizzes_used = quizzes_used + $4::bigint, updated_at = now()
where user_id = $1::uuid and year = $2::int and month = $3::int;
`
