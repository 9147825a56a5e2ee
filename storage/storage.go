package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"hackboard/domain"
)

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// Storage serves tasks and members from Azure Table storage and publishes
// board events to an Azure queue. Tasks and members are partitioned by
// project id.
type Storage struct {
	taskTable   *aztables.Client
	memberTable *aztables.Client
	eventQueue  *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string. An empty
// eventsQueue disables event publishing.
func New(connStr, tasksTable, membersTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		taskTable:   svc.NewClient(tasksTable),
		memberTable: svc.NewClient(membersTable),
	}
	if eventsQueue == "" {
		return s, nil
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	s.eventQueue = q
	return s, nil
}

type taskEntity struct {
	aztables.Entity
	ETag               string `json:"odata.etag"`
	Title              string `json:"Title"`
	Description        string `json:"Description"`
	Status             string `json:"Status"`
	Assignee           string `json:"Assignee"`
	Priority           string `json:"Priority"`
	Completed          bool   `json:"Completed"`
	ProgressPercentage *int   `json:"ProgressPercentage"`
	StartDate          string `json:"StartDate"`
	EndDate            string `json:"EndDate"`
}

// taskUpdate is merged into an existing entity; nil fields are left alone.
type taskUpdate struct {
	PartitionKey       string  `json:"PartitionKey"`
	RowKey             string  `json:"RowKey"`
	Status             *string `json:"Status,omitempty"`
	Assignee           *string `json:"Assignee,omitempty"`
	Completed          *bool   `json:"Completed,omitempty"`
	ProgressPercentage *int    `json:"ProgressPercentage,omitempty"`
	StartDate          *string `json:"StartDate,omitempty"`
	EndDate            *string `json:"EndDate,omitempty"`
}

type memberEntity struct {
	aztables.Entity
	Name string `json:"Name"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:                 ent.RowKey,
		Title:              ent.Title,
		Description:        ent.Description,
		Status:             domain.Status(ent.Status),
		Priority:           ent.Priority,
		Completed:          ent.Completed,
		ProgressPercentage: ent.ProgressPercentage,
		ETag:               ent.ETag,
	}
	if ent.Assignee != "" {
		a := ent.Assignee
		t.Assignee = &a
	}
	if d, ok := parseDate(ent.StartDate); ok {
		t.StartDate = &d
	}
	if d, ok := parseDate(ent.EndDate); ok {
		t.EndDate = &d
	}
	return t, nil
}

func parseDate(raw string) (domain.Date, bool) {
	if raw == "" {
		return domain.Date{}, false
	}
	var d domain.Date
	if err := d.UnmarshalJSON([]byte(raw)); err != nil || d.IsZero() {
		return domain.Date{}, false
	}
	return d, true
}

func encodeTaskUpdate(projectID, taskID string, patch domain.TaskPatch) taskUpdate {
	upd := taskUpdate{PartitionKey: projectID, RowKey: taskID}
	fields := patch.Fields()
	if patch.Status != nil {
		v := string(*patch.Status)
		upd.Status = &v
	}
	if patch.ClearAssignee {
		empty := ""
		upd.Assignee = &empty
	} else if patch.Assignee != nil {
		v := *patch.Assignee
		upd.Assignee = &v
	}
	upd.Completed = patch.Completed
	upd.ProgressPercentage = patch.ProgressPercentage
	if v, ok := fields["start_date"].(string); ok {
		upd.StartDate = &v
	}
	if v, ok := fields["end_date"].(string); ok {
		upd.EndDate = &v
	}
	return upd
}

// FetchTasks retrieves all tasks of a project.
func (s *Storage) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeODataString(projectID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// FetchMembers retrieves all members of a project.
func (s *Storage) FetchMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	filter := "PartitionKey eq '" + escapeODataString(projectID) + "'"
	pager := s.memberTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	members := []domain.Member{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent memberEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			members = append(members, domain.Member{ID: ent.RowKey, Name: ent.Name})
		}
	}
	return members, nil
}

// PatchTask merges the patch into the task entity. A known version is sent
// as If-Match so concurrent writers are detected.
func (s *Storage) PatchTask(ctx context.Context, projectID, taskID string, patch domain.TaskPatch) error {
	if patch.Empty() {
		return nil
	}
	payload, err := json.Marshal(encodeTaskUpdate(projectID, taskID, patch))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	if patch.IfMatch != "" {
		et = azcore.ETag(patch.IfMatch)
	}
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return mapResponseError(err, taskID)
}

// EnqueueEvent publishes a board event. It is a no-op when no queue is
// configured.
func (s *Storage) EnqueueEvent(ctx context.Context, ev domain.BoardEvent) error {
	if s.eventQueue == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.eventQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func mapResponseError(err error, taskID string) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
		case http.StatusConflict, http.StatusPreconditionFailed:
			return fmt.Errorf("task %s: %w", taskID, domain.ErrVersionConflict)
		}
	}
	return err
}

func escapeODataString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(out)
}
