package storage

import (
	"errors"

	"liquidityEngine/internal/model"
)

// Journal is a sink for operation records.
type Journal interface {
	PutOperationBatch(records []model.OperationRecord) error
}

// JournalFunc adapts a function to Journal.
type JournalFunc func(records []model.OperationRecord) error

func (f JournalFunc) PutOperationBatch(records []model.OperationRecord) error {
	return f(records)
}

// MultiJournal writes every batch to each journal in order and joins the errors.
type MultiJournal []Journal

func (m MultiJournal) PutOperationBatch(records []model.OperationRecord) error {
	var errs []error
	for _, j := range m {
		if j == nil {
			continue
		}
		if err := j.PutOperationBatch(records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
