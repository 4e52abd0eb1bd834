package sqlinline

const QCreateGenerationsSchema = `--sql 7dc7db59-78e8-4ce1-af2a-35b67d8c0cc0
create table if not exists generations (
    id text primary key,
    type text not null,
    prompt text not null default '',
    system_context text,
    storyboard text,
    negative_prompt text,
    model text,
    aspect_ratio text,
    duration integer,
    status text not null default 'pending',
    progress integer not null default 0,
    task_id text,
    result_path text,
    result_url text,
    thumbnail_path text,
    api_response jsonb,
    error_message text,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists generations_task_id_idx on generations (task_id, created_at desc);
create index if not exists generations_status_idx on generations (status, created_at desc);
`

const QInsertGeneration = `--sql 5c288602-696d-49e4-a6f5-6d304a913b67
insert into generations (
    id, type, prompt, system_context, storyboard, negative_prompt,
    model, aspect_ratio, duration, status, progress, created_at, updated_at
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12);
`

const QUpdateGenerationByID = `--sql 555ec17f-8ecd-4049-95bb-0773da9fb1dd
with prev as (
    select id, status
    from generations
    where id = $1
    for update
)
update generations g
set status = case
        when g.status = 'completed' and $10::boolean then coalesce($2, g.status)
        when g.status in ('completed', 'failed') then g.status
        else coalesce($2, g.status)
    end,
    progress = coalesce($3, g.progress),
    task_id = coalesce($4, g.task_id),
    result_path = case when g.status = 'completed' and $10::boolean then null else coalesce($5, g.result_path) end,
    result_url = coalesce($6, g.result_url),
    thumbnail_path = coalesce($7, g.thumbnail_path),
    api_response = coalesce($8::jsonb, g.api_response),
    error_message = case when g.status = 'completed' and not $10::boolean then g.error_message else coalesce($9, g.error_message) end,
    updated_at = now()
from prev
where g.id = prev.id
returning g.id, g.type, g.prompt, prev.status, g.status;
`

const QUpdateGenerationByTaskID = `--sql a6aec7b0-6b48-4fa4-9c1f-578366887ddd
with prev as (
    select id, status
    from generations
    where id = (
        select id from generations
        where task_id = $1
        order by created_at desc
        limit 1
    )
    for update
)
update generations g
set status = case
        when g.status = 'completed' and $10::boolean then coalesce($2, g.status)
        when g.status in ('completed', 'failed') then g.status
        else coalesce($2, g.status)
    end,
    progress = coalesce($3, g.progress),
    task_id = coalesce($4, g.task_id),
    result_path = case when g.status = 'completed' and $10::boolean then null else coalesce($5, g.result_path) end,
    result_url = coalesce($6, g.result_url),
    thumbnail_path = coalesce($7, g.thumbnail_path),
    api_response = coalesce($8::jsonb, g.api_response),
    error_message = case when g.status = 'completed' and not $10::boolean then g.error_message else coalesce($9, g.error_message) end,
    updated_at = now()
from prev
where g.id = prev.id
returning g.id, g.type, g.prompt, prev.status, g.status;
`

const QSelectGenerationByID = `--sql 1277a6d1-e9ca-4815-a59c-afa1c8937fd4
select id, type, prompt, system_context, storyboard, negative_prompt, model, aspect_ratio, duration,
       status, progress, task_id, result_path, result_url, thumbnail_path, api_response, error_message,
       created_at, updated_at
from generations
where id = $1;
`

const QSelectGenerationByTaskID = `--sql 937e22a2-d487-4981-ab0f-d641928bbfc8
select id, type, prompt, system_context, storyboard, negative_prompt, model, aspect_ratio, duration,
       status, progress, task_id, result_path, result_url, thumbnail_path, api_response, error_message,
       created_at, updated_at
from generations
where task_id = $1
order by created_at desc
limit 1;
`

const QListNonTerminalGenerations = `--sql b49918f1-e019-4a54-a8af-30a52a378751
select id, type, prompt, system_context, storyboard, negative_prompt, model, aspect_ratio, duration,
       status, progress, task_id, result_path, result_url, thumbnail_path, api_response, error_message,
       created_at, updated_at
from generations
where status not in ('completed', 'failed')
order by created_at desc
limit $1;
`

const QListPendingVideoTaskIDs = `--sql f607beb2-e740-4916-8edc-4424e86f0d74
select task_id
from generations
where type = 'video'
  and coalesce(task_id, '') <> ''
  and status not in ('completed', 'failed')
group by task_id
order by max(created_at) desc
limit $1;
`

const QListVideoTasks = `--sql ae740ef2-7f42-4575-afe9-dd2dc44e4ce6
select id, type, prompt, system_context, storyboard, negative_prompt, model, aspect_ratio, duration,
       status, progress, task_id, result_path, result_url, thumbnail_path, api_response, error_message,
       created_at, updated_at
from generations
where type = 'video'
order by created_at desc
limit $1;
`

const QListGenerations = `--sql 7b4986db-688b-41fd-84c3-c85449eef35e
select id, type, prompt, system_context, storyboard, negative_prompt, model, aspect_ratio, duration,
       status, progress, task_id, result_path, result_url, thumbnail_path, api_response, error_message,
       created_at, updated_at
from generations
where ($1::text is null or type = $1)
  and ($2::text is null or status = $2)
  and ($3::text is null or prompt ilike '%' || $3 || '%')
order by created_at desc
limit $4 offset $5;
`

const QCountGenerations = `--sql c43be2ae-c016-4bc0-af17-88adac6b2808
select count(*)
from generations
where ($1::text is null or type = $1)
  and ($2::text is null or status = $2)
  and ($3::text is null or prompt ilike '%' || $3 || '%');
`

const QGenerationStats = `--sql e233a878-de51-4e1c-be2c-64e4c51751c0
select count(*) filter (where type = 'video'),
       count(*) filter (where type = 'image'),
       count(*) filter (where status = 'completed')
from generations;
`

// All lists every query in the package, for marker validation.
var All = map[string]string{
	"QCreateGenerationsSchema":    QCreateGenerationsSchema,
	"QInsertGeneration":           QInsertGeneration,
	"QUpdateGenerationByID":       QUpdateGenerationByID,
	"QUpdateGenerationByTaskID":   QUpdateGenerationByTaskID,
	"QSelectGenerationByID":       QSelectGenerationByID,
	"QSelectGenerationByTaskID":   QSelectGenerationByTaskID,
	"QListNonTerminalGenerations": QListNonTerminalGenerations,
	"QListPendingVideoTaskIDs":    QListPendingVideoTaskIDs,
	"QListVideoTasks":             QListVideoTasks,
	"QListGenerations":            QListGenerations,
	"QCountGenerations":           QCountGenerations,
	"QGenerationStats":            QGenerationStats,
}
