// Package testutil holds helpers shared by voxbox tests: assertions, a log
// capture and a scriptable media gateway.
package testutil

import (
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// AssertEqual fails the test unless expected and actual are deeply equal.
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// AssertErrorIs fails unless err wraps target.
func AssertErrorIs(t *testing.T, err, target error, msg string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("%s: expected error wrapping %v, got %v", msg, target, err)
	}
}

func AssertErrorContains(t *testing.T, err error, substr string, msg string) {
	t.Helper()
	switch {
	case err == nil:
		t.Fatalf("%s: expected an error containing %q, got nil", msg, substr)
	case !strings.Contains(err.Error(), substr):
		t.Fatalf("%s: error %q does not contain %q", msg, err.Error(), substr)
	}
}

// AssertJSONContainsKey fails unless jsonStr is an object with every key.
func AssertJSONContainsKey(t *testing.T, jsonStr string, msg string, keys ...string) {
	t.Helper()
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &obj); err != nil {
		t.Fatalf("%s: invalid JSON object: %v", msg, err)
	}
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			t.Fatalf("%s: JSON has no key %q: %s", msg, k, jsonStr)
		}
	}
}

// ReadJSONFile decodes the JSON file at path into v, failing the test on
// any error.
func ReadJSONFile(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

// WaitForCondition polls condition until it holds or timeout elapses.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(timeout)
	for !condition() {
		select {
		case <-tick.C:
		case <-deadline:
			t.Fatalf("%s: condition not met within %v", msg, timeout)
		}
	}
}
