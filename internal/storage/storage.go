package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/repository"
)

var ErrOrderExists = errors.New("order already exists")

// OrderStorage keeps orders in a JSON file. It backs the server when no
// database is configured.
type OrderStorage struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	dataFile string
}

var _ repository.Repository = (*OrderStorage)(nil)

func New(dataFile string) (*OrderStorage, error) {
	st := &OrderStorage{
		orders:   make(map[string]*models.Order),
		dataFile: dataFile,
	}
	if err := st.loadFromFile(); err != nil {
		return st, err
	}
	return st, nil
}

func (st *OrderStorage) loadFromFile() error {
	file, err := os.OpenFile(st.dataFile, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	var orderList []*models.Order
	if err := json.NewDecoder(file).Decode(&orderList); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", st.dataFile, err)
	}

	st.orders = make(map[string]*models.Order, len(orderList))
	for _, o := range orderList {
		st.orders[o.ID] = o
	}
	return nil
}

// saveToFile writes a temp file and renames it over the data file.
func (st *OrderStorage) saveToFile() error {
	tmp := st.dataFile + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	orderList := make([]*models.Order, 0, len(st.orders))
	for _, o := range st.orders {
		orderList = append(orderList, o)
	}
	sortNewestFirst(orderList)

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(orderList); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, st.dataFile)
}

func (st *OrderStorage) Create(_ context.Context, o *models.Order) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.orders[o.ID]; exists {
		return fmt.Errorf("order %s: %w", o.ID, ErrOrderExists)
	}
	st.orders[o.ID] = o.Clone()
	if err := st.saveToFile(); err != nil {
		delete(st.orders, o.ID)
		return fmt.Errorf("save orders: %w", err)
	}
	return nil
}

func (st *OrderStorage) GetByID(_ context.Context, id string) (*models.Order, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	o, ok := st.orders[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (st *OrderStorage) List(_ context.Context, f repository.ListFilter) ([]*models.Order, error) {
	st.mu.Lock()
	res := make([]*models.Order, 0, len(st.orders))
	for _, o := range st.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		res = append(res, o.Clone())
	}
	st.mu.Unlock()

	sortNewestFirst(res)
	if f.Offset > 0 {
		if f.Offset >= int64(len(res)) {
			return []*models.Order{}, nil
		}
		res = res[f.Offset:]
	}
	if f.Limit > 0 && int64(len(res)) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (st *OrderStorage) UpdateTx(_ context.Context, id string, mutate func(o *models.Order) error) (*models.Order, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	current, ok := st.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	o := current.Clone()
	if err := mutate(o); err != nil {
		return nil, err
	}
	st.orders[id] = o
	if err := st.saveToFile(); err != nil {
		st.orders[id] = current
		return nil, fmt.Errorf("save orders: %w", err)
	}
	return o.Clone(), nil
}

func sortNewestFirst(orders []*models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
