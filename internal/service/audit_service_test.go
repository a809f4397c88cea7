package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
)

type fakeSearcher struct {
	gotQuery string
	gotSize  int
	hits     []model.AuditSearchHit
}

func (s *fakeSearcher) SearchAudit(_ context.Context, _, query string, size int) ([]model.AuditSearchHit, error) {
	s.gotQuery, s.gotSize = query, size
	return s.hits, nil
}

type fakeArchive struct {
	objects map[string][]byte
	err     error
}

func (a *fakeArchive) PutExport(_ context.Context, objectName string, body []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[objectName] = body
	return "https://minio.local/" + objectName, nil
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	f := newFixture(t)
	cases := map[string]AuditEntry{
		"no actor":       {CompanyID: company, EntityType: model.EntityPosition, EntityID: "p1", Action: model.ActionUpdate},
		"no entity id":   {CompanyID: company, EntityType: model.EntityPosition, Action: model.ActionUpdate, Actor: hr},
		"unknown action": {CompanyID: company, EntityType: model.EntityPosition, EntityID: "p1", Action: "rename", Actor: hr},
		"unknown type":   {CompanyID: company, EntityType: "team", EntityID: "p1", Action: model.ActionUpdate, Actor: hr},
	}
	for name, entry := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.audit.Record(f.ctx, entry)
			require.ErrorIs(t, err, orgerr.ErrInvalidArgument)
		})
	}

	l, err := f.audit.Record(f.ctx, AuditEntry{CompanyID: company, EntityType: model.EntityPosition, EntityID: "p1", Action: model.ActionUpdate, Actor: hr, Notes: "manual correction"})
	require.NoError(t, err)
	require.NotEmpty(t, l.ID)
	require.True(t, l.Timestamp.Equal(t0))
	require.NotNil(t, l.Changes)
	require.NotNil(t, l.RelatedEntities)
}

func TestAuditQueries(t *testing.T) {
	f := newFixture(t)
	_, err := f.audit.QueryByEntity(f.ctx, company, "team", "x")
	require.ErrorIs(t, err, orgerr.ErrInvalidArgument)

	_, err = f.audit.QueryByTimeRange(f.ctx, company, t0, t0.Add(-time.Second))
	require.ErrorIs(t, err, orgerr.ErrInvalidWindow)

	f.clock.Advance(time.Hour)
	p := f.position(t, "LSUP", 1)
	logs, err := f.audit.QueryByTimeRange(f.ctx, company, t0.Add(30*time.Minute), t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, p.ID, logs[0].EntityID)

	other, err := f.audit.QueryByTimeRange(f.ctx, "globex", t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestEveryCommittedWriteIsPublished(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, 1, f.publisher.count(), "department creation")

	p := f.position(t, "LSUP", 1)
	f.assign(t, p.ID, "alice")
	require.Equal(t, 3, f.publisher.count())

	last := f.publisher.events[2]
	require.Equal(t, model.EntityAssignment, last.EntityType)
	require.Equal(t, []string{p.ID}, last.PositionIDs)
	require.Equal(t, last.Log.ID, last.EventID)

	// 发布失败不影响已提交的写入
	f.publisher.err = errors.New("kafka: leader not available")
	q := f.position(t, "Q", 1)
	f.assign(t, q.ID, "bob")
	occ, err := f.assignments.OccupantAt(f.ctx, company, q.ID, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, "bob", occ.UserID)
}

func TestAuditSearch(t *testing.T) {
	f := newFixture(t)
	searcher := &fakeSearcher{hits: []model.AuditSearchHit{{Document: model.AuditDocument{ID: "log-1"}, Score: 1.5}}}
	svc := NewAuditService(f.store, nil, searcher, nil, f.clock.Now)

	hits, err := svc.Search(f.ctx, company, "swap", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "swap", searcher.gotQuery)
	require.Equal(t, 20, searcher.gotSize)

	_, err = svc.Search(f.ctx, company, "  ", 10)
	require.ErrorIs(t, err, orgerr.ErrInvalidArgument)

	_, err = f.audit.Search(f.ctx, company, "swap", 10)
	require.ErrorIs(t, err, orgerr.ErrStoreUnavailable)
}

func TestAuditExport(t *testing.T) {
	f := newFixture(t)
	f.position(t, "LSUP", 1)
	archive := &fakeArchive{}
	svc := NewAuditService(f.store, nil, nil, archive, f.clock.Now)

	export, err := svc.Export(f.ctx, company, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, export.Entries)
	require.True(t, strings.HasPrefix(export.ObjectName, "audit-exports/acme/"))
	require.True(t, strings.HasSuffix(export.ObjectName, ".jsonl"))
	require.Equal(t, "https://minio.local/"+export.ObjectName, export.URL)

	scanner := bufio.NewScanner(bytes.NewReader(archive.objects[export.ObjectName]))
	var lines int
	for scanner.Scan() {
		var l model.OrgAuditLog
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l))
		require.Equal(t, company, l.CompanyID)
		lines++
	}
	require.Equal(t, 2, lines)

	archive.err = errors.New("minio: bucket missing")
	_, err = svc.Export(f.ctx, company, t0, t0.Add(time.Hour))
	require.ErrorIs(t, err, orgerr.ErrStoreUnavailable)
}
