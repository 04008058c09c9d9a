package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, kind, target_ref, status, priority, model, params_json, attempt_count, error_message, result_json, processing_time_ms, lease_host, last_heartbeat, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		kindStr          string
		targetRef        string
		statusStr        string
		priority         int
		model            sql.NullString
		paramsJSON       sql.NullString
		attemptCount     int
		errorMessage     sql.NullString
		resultJSON       sql.NullString
		processingMS     sql.NullInt64
		leaseHost        sql.NullString
		lastHeartbeatRaw sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kindStr,
		&targetRef,
		&statusStr,
		&priority,
		&model,
		&paramsJSON,
		&attemptCount,
		&errorMessage,
		&resultJSON,
		&processingMS,
		&leaseHost,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Kind:         Kind(kindStr),
		TargetRef:    targetRef,
		Status:       Status(statusStr),
		Priority:     priority,
		Model:        model.String,
		ParamsJSON:   paramsJSON.String,
		AttemptCount: attemptCount,
		ErrorMessage: errorMessage.String,
		ResultJSON:   resultJSON.String,
		ProcessingMS: processingMS.Int64,
		LeaseHost:    leaseHost.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
