package sqlinline

// Columns are scanned by repo.scanImage in this order.

const QInsertImage = `--sql 2caa5b21-4c2b-4b72-8a36-7d3d0f9b77a1
insert into images (prompt, gcs_path, model, created_by, parent_id)
values ($1, $2, $3, $4, $5)
returning id, prompt, gcs_path, model, created_by, parent_id, created_at;
`

const QSelectImageByID = `--sql 6f1e9b0c-3d52-4a8e-b7c4-91d2e5a0f318
select id, prompt, gcs_path, model, created_by, parent_id, created_at
from images
where id = $1
limit 1;
`

const QListRecentImages = `--sql a4d7c3e2-58b1-4f06-9e2a-0b6c8d1f7e45
select id, prompt, gcs_path, model, created_by, parent_id, created_at
from images
order by created_at desc, id desc
limit $1
offset $2;
`

const QDeleteImage = `--sql d9b8e7f6-1a2c-4d3e-8f5a-6b7c0e1d2f34
delete from images
where id = $1;
`
