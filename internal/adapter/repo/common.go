package repo

import (
	"strings"

	"studio/internal/domain"
)

const (
	defaultListLimit = 500
	defaultPageSize  = 20
	maxPageSize      = 200
)

func nullableText(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// patchArgs orders patch fields as the update statements expect them.
func patchArgs(p domain.GenerationPatch) []any {
	var status any
	if p.Status != nil {
		status = string(*p.Status)
	}
	var progress any
	if p.Progress != nil {
		progress = *p.Progress
	}
	return []any{
		status,
		progress,
		ptrArg(p.TaskID),
		ptrArg(p.ResultPath),
		ptrArg(p.ResultURL),
		ptrArg(p.ThumbnailPath),
		nullableBytes(p.RawAPIResponse),
		ptrArg(p.ErrorMessage),
		p.RevokeCompleted,
	}
}

func ptrArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
