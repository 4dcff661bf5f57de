package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"distill/internal/metrics"
	"distill/internal/model"
	"distill/internal/store"
)

// IdempotencyKey computes the spec's idempotency key: a SHA-256 digest
// over the owning credential, job type, and the canonical (key-sorted)
// JSON encoding of the request parameters. Re-submitting identical
// params under the same credential always yields the same key, so
// Submit can detect and return the original job instead of enqueuing a
// duplicate.
func IdempotencyKey(credentialID uuid.UUID, jobType model.JobType, params any) (string, error) {
	canonical, err := canonicalJSON(params)
	if err != nil {
		return "", fmt.Errorf("canonicalize params: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(credentialID.String()))
	h.Write([]byte{0})
	h.Write([]byte(jobType))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON re-marshals v through a generic map/slice representation
// so object keys are sorted deterministically; encoding/json already
// sorts map keys on marshal, so decoding into map[string]any and
// re-encoding is sufficient without a bespoke canonicalizer.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Submit creates a new job for credentialID, or returns the existing
// job if an identical request (by idempotency key) was already
// submitted by the same credential.
func Submit(ctx context.Context, st JobStore, credentialID uuid.UUID, jobType model.JobType, params any) (*model.Job, error) {
	key, err := IdempotencyKey(credentialID, jobType, params)
	if err != nil {
		return nil, err
	}

	existing, err := st.GetJobByIdempotencyKey(ctx, credentialID, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup existing job: %w", err)
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}

	job := &model.Job{
		ID:                uuid.New(),
		OwnerCredentialID: credentialID,
		Type:              jobType,
		Status:            model.JobStatusQueued,
		InputParams:       payload,
		IdempotencyKey:    key,
		CreatedAt:         time.Now().UTC(),
	}
	if err := st.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.RecordJobQueued(string(jobType))
	return job, nil
}
