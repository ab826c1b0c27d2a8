package engine

import (
	"context"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// TaskDiscriminator is the activity_type of rows exposed as tasks.
const TaskDiscriminator = "task"

const discriminatorField = "activity_type"

// taskFieldNames maps task field names to activity columns.
var taskFieldNames = map[string]string{
	"title": "subject",
}

// taskTypes maps the task type vocabulary to activity type values.
var taskTypes = map[string]string{
	"Call":      "call",
	"Email":     "email",
	"Meeting":   "meeting",
	"Follow-up": "follow_up",
	"Demo":      "demo",
	"Proposal":  "proposal",
	"None":      "administrative",
}

var (
	activityFieldNames = invert(taskFieldNames)
	activityTypes      = invert(taskTypes)
)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// TaskTypeToActivity maps a task type to its activity value. Unknown values
// are returned unchanged.
func TaskTypeToActivity(t string) string {
	if v, ok := taskTypes[t]; ok {
		return v
	}
	return t
}

// ActivityTypeToTask is the inverse of TaskTypeToActivity.
func ActivityTypeToTask(t string) string {
	if v, ok := activityTypes[t]; ok {
		return v
	}
	return t
}

// TaskToActivity renames task fields and type values to activity ones.
func TaskToActivity(task provider.Record) provider.Record {
	if task == nil {
		return nil
	}
	out := make(provider.Record, len(task))
	for k, v := range task {
		if to, ok := taskFieldNames[k]; ok {
			k = to
		}
		out[k] = v
	}
	if t, ok := out["type"].(string); ok {
		out["type"] = TaskTypeToActivity(t)
	}
	return out
}

// ActivityToTask renames activity columns and type values to task ones and
// drops the discriminator.
func ActivityToTask(activity provider.Record) provider.Record {
	if activity == nil {
		return nil
	}
	out := make(provider.Record, len(activity))
	for k, v := range activity {
		if k == discriminatorField {
			continue
		}
		if to, ok := activityFieldNames[k]; ok {
			k = to
		}
		out[k] = v
	}
	if t, ok := out["type"].(string); ok {
		out["type"] = ActivityTypeToTask(t)
	}
	return out
}

func taskFilterToActivity(f provider.Filter) provider.Filter {
	out := make(provider.Filter, len(f)+1)
	for key, v := range f {
		field, op := provider.SplitFilterKey(key)
		if field == provider.SearchKey {
			out[key] = v
			continue
		}
		if to, ok := taskFieldNames[field]; ok {
			field = to
		}
		if field == "type" {
			v = mapTypeValue(v)
		}
		out[provider.JoinFilterKey(field, op)] = v
	}
	out[discriminatorField] = TaskDiscriminator
	return out
}

func mapTypeValue(v any) any {
	switch t := v.(type) {
	case string:
		return TaskTypeToActivity(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = TaskTypeToActivity(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, s := range t {
			if str, ok := s.(string); ok {
				out[i] = TaskTypeToActivity(str)
			} else {
				out[i] = s
			}
		}
		return out
	}
	return v
}

func taskSortToActivity(s provider.Sort) provider.Sort {
	if to, ok := taskFieldNames[s.Field]; ok {
		s.Field = to
	}
	return s
}

// isTask reports whether an activity row is task-typed. Rows that were read
// without the discriminator column are taken as tasks.
func isTask(activity provider.Record) bool {
	d, ok := activity[discriminatorField]
	return !ok || d == TaskDiscriminator
}

func tasksOf(activities []provider.Record) []provider.Record {
	out := make([]provider.Record, 0, len(activities))
	for _, a := range activities {
		if isTask(a) {
			out = append(out, ActivityToTask(a))
		}
	}
	return out
}

type tasksAdapter struct {
	activities provider.DataProvider
}

// TasksAdapter presents task-typed rows of activities as the tasks resource.
// Every call is redirected to activities, whatever resource name it carries.
func TasksAdapter(activities provider.DataProvider) provider.DataProvider {
	return &tasksAdapter{activities: activities}
}

func (a *tasksAdapter) Unwrap() provider.DataProvider { return a.activities }

func (a *tasksAdapter) GetList(ctx context.Context, _ string, params provider.GetListParams) (*provider.ListResult, error) {
	params.Filter = taskFilterToActivity(params.Filter)
	params.Sort = taskSortToActivity(params.Sort)
	res, err := a.activities.GetList(ctx, metadata.Activities, params)
	if err != nil {
		return nil, err
	}
	return &provider.ListResult{Data: tasksOf(res.Data), Total: res.Total}, nil
}

func (a *tasksAdapter) GetOne(ctx context.Context, _ string, params provider.GetOneParams) (*provider.RecordResult, error) {
	res, err := a.activities.GetOne(ctx, metadata.Activities, params)
	if err != nil {
		return nil, err
	}
	if !isTask(res.Data) {
		return nil, provider.NoRowsError()
	}
	return &provider.RecordResult{Data: ActivityToTask(res.Data)}, nil
}

func (a *tasksAdapter) GetMany(ctx context.Context, _ string, params provider.GetManyParams) (*provider.ListResult, error) {
	res, err := a.activities.GetMany(ctx, metadata.Activities, params)
	if err != nil {
		return nil, err
	}
	data := tasksOf(res.Data)
	return &provider.ListResult{Data: data, Total: len(data)}, nil
}

func (a *tasksAdapter) GetManyReference(ctx context.Context, _ string, params provider.GetManyReferenceParams) (*provider.ListResult, error) {
	if to, ok := taskFieldNames[params.Target]; ok {
		params.Target = to
	}
	params.Filter = taskFilterToActivity(params.Filter)
	params.Sort = taskSortToActivity(params.Sort)
	res, err := a.activities.GetManyReference(ctx, metadata.Activities, params)
	if err != nil {
		return nil, err
	}
	return &provider.ListResult{Data: tasksOf(res.Data), Total: res.Total}, nil
}

func (a *tasksAdapter) Create(ctx context.Context, _ string, params provider.CreateParams) (*provider.RecordResult, error) {
	params.Data = TaskToActivity(params.Data)
	if params.Data == nil {
		params.Data = provider.Record{}
	}
	params.Data[discriminatorField] = TaskDiscriminator
	res, err := a.activities.Create(ctx, metadata.Activities, params)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: ActivityToTask(res.Data)}, nil
}

func (a *tasksAdapter) Update(ctx context.Context, _ string, params provider.UpdateParams) (*provider.RecordResult, error) {
	if _, err := a.GetOne(ctx, metadata.Tasks, provider.GetOneParams{ID: params.ID, Meta: params.Meta}); err != nil {
		return nil, err
	}
	params.Data = TaskToActivity(params.Data)
	if params.Data == nil {
		params.Data = provider.Record{}
	}
	params.Data[discriminatorField] = TaskDiscriminator
	params.PreviousData = TaskToActivity(params.PreviousData)
	res, err := a.activities.Update(ctx, metadata.Activities, params)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: ActivityToTask(res.Data)}, nil
}

func (a *tasksAdapter) UpdateMany(ctx context.Context, _ string, params provider.UpdateManyParams) (*provider.IDsResult, error) {
	ids, err := a.taskIDs(ctx, params.IDs, params.Meta)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &provider.IDsResult{Data: []any{}}, nil
	}
	params.IDs = ids
	params.Data = TaskToActivity(params.Data)
	return a.activities.UpdateMany(ctx, metadata.Activities, params)
}

// Delete refuses non-task activities. A missing row still reaches the
// activities handler, which answers deletes of absent rows idempotently.
func (a *tasksAdapter) Delete(ctx context.Context, _ string, params provider.DeleteParams) (*provider.RecordResult, error) {
	cur, err := a.activities.GetOne(ctx, metadata.Activities, provider.GetOneParams{ID: params.ID, Meta: params.Meta})
	switch {
	case err == nil && !isTask(cur.Data):
		return nil, provider.NoRowsError()
	case err != nil && !IsNoRowsError(err):
		return nil, err
	}
	params.PreviousData = TaskToActivity(params.PreviousData)
	res, err := a.activities.Delete(ctx, metadata.Activities, params)
	if err != nil {
		return nil, err
	}
	return &provider.RecordResult{Data: ActivityToTask(res.Data)}, nil
}

func (a *tasksAdapter) DeleteMany(ctx context.Context, _ string, params provider.DeleteManyParams) (*provider.IDsResult, error) {
	ids, err := a.taskIDs(ctx, params.IDs, params.Meta)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &provider.IDsResult{Data: []any{}}, nil
	}
	params.IDs = ids
	return a.activities.DeleteMany(ctx, metadata.Activities, params)
}

// taskIDs narrows ids to the existing task-typed activities.
func (a *tasksAdapter) taskIDs(ctx context.Context, ids []any, meta provider.Meta) ([]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := a.activities.GetMany(ctx, metadata.Activities, provider.GetManyParams{IDs: ids, Meta: meta})
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(res.Data))
	for _, r := range res.Data {
		if isTask(r) {
			out = append(out, r["id"])
		}
	}
	return out, nil
}
