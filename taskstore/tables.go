package taskstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"github.com/saquibalam09/kanban/domain"
)

const (
	tasksPartition    = "tasks"
	countersPartition = "counters"
	taskCounterRow    = "task-id"

	edmDateTime = "Edm.DateTime"
	edmInt64    = "Edm.Int64"

	maxCounterAttempts = 10
)

type taskEntity struct {
	PartitionKey  string  `json:"PartitionKey"`
	RowKey        string  `json:"RowKey"`
	Title         string  `json:"Title"`
	Description   string  `json:"Description"`
	Status        string  `json:"Status"`
	CreatedAt     string  `json:"CreatedAt"`
	CreatedAtType string  `json:"CreatedAt@odata.type"`
	UpdatedAt     *string `json:"UpdatedAt,omitempty"`
	UpdatedAtType *string `json:"UpdatedAt@odata.type,omitempty"`
}

type counterEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	NextID       int64  `json:"NextID,string"`
	NextIDType   string `json:"NextID@odata.type"`
}

// TableRepository stores tasks in an Azure Storage table. Ids come from a
// counter entity advanced with optimistic concurrency.
type TableRepository struct {
	table *aztables.Client
	now   func() time.Time
}

// NewTableRepository connects to tasksTable using connStr.
func NewTableRepository(connStr, tasksTable string) (*TableRepository, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableRepository{
		table: svc.NewClient(tasksTable),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *TableRepository) List(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + tasksPartition + "'"
	pager := r.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
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

func (r *TableRepository) Get(ctx context.Context, id int64) (domain.Task, error) {
	t, _, err := r.get(ctx, id)
	return t, err
}

func (r *TableRepository) Create(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	id, err := r.allocateID(ctx)
	if err != nil {
		return domain.Task{}, fmt.Errorf("allocate id: %w", err)
	}
	now := r.now()
	t := domain.Task{
		ID:          domain.Int64(id),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		CreatedAt:   &now,
	}
	payload, err := sonic.Marshal(encodeTaskEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := r.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (r *TableRepository) Update(ctx context.Context, id int64, in domain.TaskInput) (domain.Task, error) {
	t, etag, err := r.get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	now := r.now()
	t.Title, t.Description, t.Status = in.Title, in.Description, in.Status
	t.UpdatedAt = &now
	payload, err := sonic.Marshal(encodeTaskEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	_, err = r.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Task{}, ErrNotFound
		}
		return domain.Task{}, err
	}
	return t, nil
}

func (r *TableRepository) Delete(ctx context.Context, id int64) error {
	et := azcore.ETagAny
	_, err := r.table.DeleteEntity(ctx, tasksPartition, rowKey(id), &aztables.DeleteEntityOptions{IfMatch: &et})
	if isStatus(err, http.StatusNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *TableRepository) get(ctx context.Context, id int64) (domain.Task, azcore.ETag, error) {
	ent, err := r.table.GetEntity(ctx, tasksPartition, rowKey(id), nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Task{}, "", ErrNotFound
		}
		return domain.Task{}, "", err
	}
	t, err := decodeTaskEntity(ent.Value)
	if err != nil {
		return domain.Task{}, "", err
	}
	return t, ent.ETag, nil
}

// allocateID reserves the next task id. Concurrent writers race on the
// counter's ETag; the loser rereads and tries again.
func (r *TableRepository) allocateID(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < maxCounterAttempts; attempt++ {
		ent, err := r.table.GetEntity(ctx, countersPartition, taskCounterRow, nil)
		if isStatus(err, http.StatusNotFound) {
			payload, merr := sonic.Marshal(newCounterEntity(2))
			if merr != nil {
				return 0, merr
			}
			_, err = r.table.AddEntity(ctx, payload, nil)
			if err == nil {
				return 1, nil
			}
			if isStatus(err, http.StatusConflict) {
				continue
			}
			return 0, err
		}
		if err != nil {
			return 0, err
		}

		var c counterEntity
		if err := sonic.Unmarshal(ent.Value, &c); err != nil {
			return 0, fmt.Errorf("decode counter: %w", err)
		}
		id := c.NextID
		payload, err := sonic.Marshal(newCounterEntity(id + 1))
		if err != nil {
			return 0, err
		}
		etag := ent.ETag
		_, err = r.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if err == nil {
			return id, nil
		}
		if !isStatus(err, http.StatusPreconditionFailed) {
			return 0, err
		}
	}
	return 0, errors.New("task id counter is contended")
}

func newCounterEntity(next int64) counterEntity {
	return counterEntity{
		PartitionKey: countersPartition,
		RowKey:       taskCounterRow,
		NextID:       next,
		NextIDType:   edmInt64,
	}
}

// rowKey zero-pads ids so the table's lexical order is id order.
func rowKey(id int64) string {
	return fmt.Sprintf("%019d", id)
}

func encodeTaskEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		PartitionKey:  tasksPartition,
		RowKey:        rowKey(t.IDValue()),
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		CreatedAtType: edmDateTime,
	}
	if t.CreatedAt != nil {
		ent.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if t.UpdatedAt != nil {
		updated := t.UpdatedAt.UTC().Format(time.RFC3339Nano)
		typ := edmDateTime
		ent.UpdatedAt, ent.UpdatedAtType = &updated, &typ
	}
	return ent
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	id, err := strconv.ParseInt(ent.RowKey, 10, 64)
	if err != nil {
		return domain.Task{}, fmt.Errorf("invalid task row key %q: %w", ent.RowKey, err)
	}
	t := domain.Task{
		ID:          domain.Int64(id),
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
	}
	if ent.CreatedAt != "" {
		created, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
		if err != nil {
			return domain.Task{}, fmt.Errorf("invalid CreatedAt: %w", err)
		}
		t.CreatedAt = &created
	}
	if ent.UpdatedAt != nil && *ent.UpdatedAt != "" {
		updated, err := time.Parse(time.RFC3339Nano, *ent.UpdatedAt)
		if err != nil {
			return domain.Task{}, fmt.Errorf("invalid UpdatedAt: %w", err)
		}
		t.UpdatedAt = &updated
	}
	return t, nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
