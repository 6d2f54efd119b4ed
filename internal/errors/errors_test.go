package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTesseraError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeUploadFailed, "upload failed")
	expected := "[STORAGE:UPLOAD_FAILED] upload failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestTesseraError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeUploadFailed, "upload failed", cause)
	expected := "[STORAGE:UPLOAD_FAILED] upload failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestTesseraError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryCatalog, CodeCatalogIO, "read failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestTesseraError_Is(t *testing.T) {
	err1 := New(ErrCategoryStorage, CodeUploadFailed, "first")
	err2 := New(ErrCategoryStorage, CodeUploadFailed, "second")
	err3 := New(ErrCategoryStorage, CodeDownloadFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryCatalog, CodeTableNotFound, false},
		{ErrCategoryCatalog, CodeMalformedCatalog, false},
		{ErrCategoryPruning, CodeTypeMismatch, false},
		{ErrCategorySnapshot, CodeCorruptSnapshot, false},
		{ErrCategoryConfig, CodeInvalidConfig, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryPruning, CodeTypeMismatch, "text literal on int64 column")
	if GetCategory(err) != ErrCategoryPruning {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryPruning)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-TesseraError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryPruning, CodeTypeMismatch, "text literal on int64 column")
	if GetCode(err) != CodeTypeMismatch {
		t.Errorf("got %q, want %q", GetCode(err), CodeTypeMismatch)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-TesseraError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryCatalog, CodeMalformedCatalog, "overlapping intervals")
	detailed := err.WithDetails(map[string]interface{}{"table_id": int64(12)})

	if detailed.Details["table_id"] != int64(12) {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	nf := NewNotFound("table 42 is not distributed")
	if nf.Category != ErrCategoryCatalog || nf.Code != CodeTableNotFound {
		t.Error("NewNotFound mismatch")
	}

	tm := NewTypeMismatch("text vs int64", cause)
	if tm.Category != ErrCategoryPruning || !errors.Is(tm, cause) {
		t.Error("NewTypeMismatch mismatch")
	}

	mc := NewMalformedCatalog("unsorted intervals", nil)
	if mc.Category != ErrCategoryCatalog || mc.Code != CodeMalformedCatalog {
		t.Error("NewMalformedCatalog mismatch")
	}

	s := NewStorageError(CodeUploadFailed, "s3 down", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	sn := NewSnapshotError("bad frame", cause)
	if sn.Category != ErrCategorySnapshot || sn.Code != CodeCorruptSnapshot {
		t.Error("NewSnapshotError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(fmt.Errorf("load: %w", NewNotFound("missing"))) {
		t.Error("IsNotFound should see through wrapping")
	}
	if !IsTypeMismatch(NewTypeMismatch("bad literal", nil)) {
		t.Error("IsTypeMismatch failed on direct error")
	}
	if !IsMalformedCatalog(NewMalformedCatalog("overlap", nil)) {
		t.Error("IsMalformedCatalog failed on direct error")
	}
	if IsNotFound(NewTypeMismatch("bad literal", nil)) {
		t.Error("IsNotFound matched wrong code")
	}
}
