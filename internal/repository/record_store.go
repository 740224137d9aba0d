package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"task-planner/internal/model"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrEmptyFilter  = errors.New("filter is required")
)

var tableModels = map[string]func() any{
	model.TableTasks:    func() any { return &model.Task{} },
	model.TableSubTasks: func() any { return &model.SubTask{} },
}

// RecordStore is a generic select/insert/update/delete client over the
// tasks and sub_tasks tables. Filters are column → value equality maps.
type RecordStore struct {
	db *gorm.DB
}

func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Select loads every row of table matching filter into dest, a pointer to a
// slice of the table's model, oldest first.
func (r *RecordStore) Select(ctx context.Context, table string, filter map[string]any, dest any) error {
	if _, err := lookupModel(table); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Table(table).Where(filter).Order("created_at ASC").Find(dest).Error; err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	return nil
}

// Insert writes rows (a pointer to a slice of the table's model) in one
// statement. Generated IDs are written back into rows.
func (r *RecordStore) Insert(ctx context.Context, table string, rows any) error {
	if _, err := lookupModel(table); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Table(table).Create(rows).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update applies patch to the rows matching filter. Matching nothing is
// reported as model.ErrNotFound.
func (r *RecordStore) Update(ctx context.Context, table string, patch map[string]any, filter map[string]any) error {
	newModel, err := lookupModel(table)
	if err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("update %s: %w", table, ErrEmptyFilter)
	}
	res := r.db.WithContext(ctx).Model(newModel()).Where(filter).Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s: %w", table, model.ErrNotFound)
	}
	return nil
}

// Delete removes the rows matching filter. Deleting nothing is not an error.
func (r *RecordStore) Delete(ctx context.Context, table string, filter map[string]any) error {
	newModel, err := lookupModel(table)
	if err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("delete %s: %w", table, ErrEmptyFilter)
	}
	if err := r.db.WithContext(ctx).Where(filter).Delete(newModel()).Error; err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func lookupModel(table string) (func() any, error) {
	newModel, ok := tableModels[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return newModel, nil
}
