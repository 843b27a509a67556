package sqlinline

const QSelectSubscription = `--sql 7e470693-d0b1-4d57-b368-5d5851df8764
select user_id, plan, tokens_limit, quizzes_limit, updated_at
from subscriptions
where user_id = $1::uuid;
`

const QUpsertSubscription = `--sql 1d5151d4-75ac-4cda-8fa1-e186a7145be8
insert into subscriptions(user_id, plan, tokens_limit, quizzes_limit, updated_at)
values ($1::uuid, $2::text, $3::bigint, $4::bigint, now())
on conflict (user_id) do update
set plan = excluded.plan,
    tokens_limit = excluded.tokens_limit,
    quizzes_limit = excluded.quizzes_limit,
    updated_at = now();
`
