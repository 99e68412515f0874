package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildfund/onboard/pkg/api"
)

func TestStoreSessionRoundTrip(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "onboard.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	sess := &Session{
		SessionID:   "sess-1",
		Owner:       "alice",
		Role:        RoleBorrower,
		CurrentStep: StepProfileDOB,
		History: []api.HistoryEntry{
			{Type: "bot", Message: "What's your first name?", Timestamp: now},
			{Type: "user", Message: "Alice", Timestamp: now.Add(time.Minute)},
		},
		Collected:    map[string]string{"first_name": "Alice"},
		IsActive:     true,
		StartedAt:    now,
		LastActivity: now.Add(time.Minute),
	}
	require.NoError(t, store.SaveSession(ctx, sess))

	got, err := store.GetSession(ctx, "alice", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StepProfileDOB, got.CurrentStep)
	assert.Equal(t, RoleBorrower, got.Role)
	assert.Equal(t, "Alice", got.Collected["first_name"])
	require.Len(t, got.History, 2)
	assert.Equal(t, "user", got.History[1].Type)
	assert.True(t, got.StartedAt.Equal(now))

	// SaveSession is an upsert, a second save replaces rather than duplicates
	sess.CurrentStep = StepProfileNationality
	require.NoError(t, store.SaveSession(ctx, sess))
	got, err = store.GetSession(ctx, "alice", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, StepProfileNationality, got.CurrentStep)
}

func TestStoreActiveSession(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "onboard.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()

	got, err := store.ActiveSession(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC()
	require.NoError(t, store.SaveSession(ctx, &Session{
		SessionID:    "sess-old",
		Owner:        "bob",
		Role:         RoleLender,
		CurrentStep:  StepWelcome,
		Collected:    map[string]string{},
		IsActive:     false,
		StartedAt:    now.Add(-time.Hour),
		LastActivity: now.Add(-time.Hour),
	}))
	require.NoError(t, store.SaveSession(ctx, &Session{
		SessionID:    "sess-new",
		Owner:        "bob",
		Role:         RoleLender,
		CurrentStep:  StepContactPhone,
		Collected:    map[string]string{},
		IsActive:     true,
		StartedAt:    now,
		LastActivity: now,
	}))

	got, err = store.ActiveSession(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sess-new", got.SessionID)

	// other owners never see bob's session
	got, err = store.ActiveSession(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreDocuments(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "onboard.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	now := time.Now().UTC()

	doc := &Document{
		Owner:      "carol",
		SessionID:  "sess-2",
		FileName:   "passport.pdf",
		FileType:   "application/pdf",
		FileSize:   2048,
		DocKey:     "proof_of_identity",
		UploadedAt: now,
	}
	require.NoError(t, store.AddDocument(ctx, doc))
	assert.NotZero(t, doc.ID)

	docs, err := store.DocumentsFor(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "passport.pdf", docs[0].FileName)
	assert.Equal(t, "proof_of_identity", docs[0].DocKey)
	assert.Equal(t, int64(2048), docs[0].FileSize)

	docs, err = store.DocumentsFor(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestClassifyDocument(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Passport_Scan.PDF", "proof_of_identity"},
		{"driving-licence.jpg", "proof_of_identity"},
		{"utility_bill_march.pdf", "proof_of_address"},
		{"bank_statement.pdf", "proof_of_address"},
		{"holiday_photo.png", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyDocument(tc.name), tc.name)
	}
}

func TestDocumentStatus(t *testing.T) {
	status := documentStatus(nil)
	assert.False(t, status.AllUploaded)
	assert.Equal(t, []string{"proof_of_identity", "proof_of_address"}, status.MissingDocuments)

	status = documentStatus([]Document{{DocKey: "proof_of_identity"}})
	assert.False(t, status.AllUploaded)
	assert.Equal(t, []string{"proof_of_address"}, status.MissingDocuments)

	status = documentStatus([]Document{
		{DocKey: "proof_of_identity"},
		{DocKey: "proof_of_address"},
		{DocKey: ""},
	})
	assert.True(t, status.AllUploaded)
	assert.Empty(t, status.MissingDocuments)
}
