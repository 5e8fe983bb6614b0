package crm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/salesforce"
)

type mockSF struct {
	mock.Mock
}

func (m *mockSF) Query(ctx context.Context, soql string, out any) error {
	args := m.Called(ctx, soql, out)
	if fn, ok := args.Get(0).(func(any)); ok {
		fn(out)
	}
	return args.Error(1)
}

func (m *mockSF) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	args := m.Called(ctx, sObjectName, record)
	return args.String(0), args.Error(1)
}

func (m *mockSF) UpdateOne(ctx context.Context, sObjectName, id string, fields map[string]any) error {
	return m.Called(ctx, sObjectName, id, fields).Error(0)
}

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func handoff() *model.Handoff {
	r := model.NewRecord("acme", model.Company{ID: "acme", Name: "Acme", Domain: "acme.com", Industry: "SaaS", Size: 250})
	r.Contacts = []model.Contact{
		{ID: "c1", Name: "Ada Lovelace", Email: "Ada.Lovelace@acme.com", Title: "VP Customer Experience"},
		{ID: "c2", Name: "Cher", Email: "cher@acme.com"},
	}
	r.FitScore = 0.82
	r.Summary = "• Strong CX focus"
	r.Draft = &model.EmailDraft{Subject: "Improve Acme's Customer Experience"}
	r.Status = model.StatusReadyForHandoff
	start := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)
	return &model.Handoff{
		Record:        *r,
		Thread:        &model.Thread{ID: "t1", Messages: []model.Message{{ID: "m1"}}},
		CalendarSlots: []model.Slot{{Start: start, End: start.Add(30 * time.Minute)}},
	}
}

func noAccount(out any) { *(out.(*[]salesforce.Account)) = nil }

func TestSalesforceSink_CreatesAccount(t *testing.T) {
	ctx := context.Background()
	m := new(mockSF)
	m.On("Query", ctx, mock.Anything, mock.Anything).Return(noAccount, nil)
	m.On("InsertOne", ctx, "Account", mock.MatchedBy(func(f map[string]any) bool {
		return f["Name"] == "Acme" && f["Website"] == "https://acme.com" && f["NumberOfEmployees"] == 250
	})).Return("001", nil)
	m.On("InsertOne", ctx, "Contact", mock.MatchedBy(func(f map[string]any) bool {
		return f["FirstName"] == "Ada" && f["LastName"] == "Lovelace" && f["Email"] == "ada.lovelace@acme.com" && f["AccountId"] == "001"
	})).Return("003a", nil)
	m.On("InsertOne", ctx, "Contact", mock.MatchedBy(func(f map[string]any) bool {
		_, hasFirst := f["FirstName"]
		return !hasFirst && f["LastName"] == "Cher"
	})).Return("003b", nil)
	m.On("InsertOne", ctx, "Task", mock.MatchedBy(func(f map[string]any) bool {
		desc, _ := f["Description"].(string)
		return f["WhatId"] == "001" &&
			f["Subject"] == "Prospect ready for handoff: Acme" &&
			assert.Contains(t, desc, "Fit score: 0.82") &&
			assert.Contains(t, desc, "2026-05-04 14:00 UTC")
	})).Return("00T", nil)

	ref, err := NewSalesforceSink(m).Push(ctx, handoff())
	require.NoError(t, err)
	assert.Equal(t, "001", ref)
	m.AssertExpectations(t)
}

func TestSalesforceSink_ReusesAccount(t *testing.T) {
	ctx := context.Background()
	m := new(mockSF)
	m.On("Query", ctx, mock.Anything, mock.Anything).Return(func(out any) {
		*(out.(*[]salesforce.Account)) = []salesforce.Account{{ID: "001X", Name: "Acme"}}
	}, nil)
	m.On("InsertOne", ctx, "Contact", mock.Anything).Return("003", nil)
	m.On("InsertOne", ctx, "Task", mock.Anything).Return("00T", nil)

	ref, err := NewSalesforceSink(m).Push(ctx, handoff())
	require.NoError(t, err)
	assert.Equal(t, "001X", ref)
	m.AssertNotCalled(t, "InsertOne", ctx, "Account", mock.Anything)
}

func TestSalesforceSink_Errors(t *testing.T) {
	ctx := context.Background()

	m := new(mockSF)
	m.On("Query", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("session expired"))
	_, err := NewSalesforceSink(m).Push(ctx, handoff())
	assert.ErrorContains(t, err, "crm: lookup account")

	m = new(mockSF)
	m.On("Query", ctx, mock.Anything, mock.Anything).Return(noAccount, nil)
	m.On("InsertOne", ctx, "Account", mock.Anything).Return("001", nil)
	m.On("InsertOne", ctx, "Contact", mock.Anything).Return("", errors.New("duplicate"))
	ref, err := NewSalesforceSink(m).Push(ctx, handoff())
	assert.ErrorContains(t, err, "crm: create contact c1")
	assert.Equal(t, "001", ref)

	h := handoff()
	h.Record.Company.Domain = ""
	_, err = NewSalesforceSink(new(mockSF)).Push(ctx, h)
	assert.ErrorContains(t, err, "has no domain")
}

func TestNotionSink_Push(t *testing.T) {
	ctx := context.Background()
	m := new(mockNotion)
	m.On("UpdatePage", ctx, "acme", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		score, ok := req.Properties["Fit Score"].(notionapi.NumberProperty)
		return ok && score.Number == 0.82
	})).Return(&notionapi.Page{}, nil)

	ref, err := NewNotionSink(m).Push(ctx, handoff())
	require.NoError(t, err)
	assert.Equal(t, "acme", ref)
	m.AssertExpectations(t)
}

type stubSink struct {
	name string
	ref  string
	err  error
}

func (s stubSink) Name() string { return s.name }

func (s stubSink) Push(context.Context, *model.Handoff) (string, error) { return s.ref, s.err }

func TestMulti(t *testing.T) {
	m := Multi{
		stubSink{name: "salesforce", ref: "001"},
		stubSink{name: "notion", err: errors.New("rate limited")},
		stubSink{name: "other", ref: "x"},
	}
	assert.Equal(t, "salesforce+notion+other", m.Name())

	ref, err := m.Push(context.Background(), handoff())
	assert.Equal(t, "salesforce:001,other:x", ref)
	assert.ErrorContains(t, err, "rate limited")

	ref, err = Multi{stubSink{name: "a", ref: "1"}}.Push(context.Background(), handoff())
	require.NoError(t, err)
	assert.Equal(t, "a:1", ref)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Mary Ann Evans", "Mary Ann", "Evans"},
		{"Cher", "", "Cher"},
		{"  ", "", "Unknown"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}
