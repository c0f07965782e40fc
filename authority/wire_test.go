package authority

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSchemaEncodeCredentialFieldNames(t *testing.T) {
	cases := []struct {
		schema      Schema
		identField  string
		secretField string
	}{
		{SchemaCanonical, "identifier", "secret"},
		{SchemaUser, "email", "password"},
		{SchemaAccount, "email", "password"},
	}

	for _, tc := range cases {
		body, err := tc.schema.EncodeCredential(Credential{Identifier: "a@x.com", Secret: "p1"})
		if err != nil {
			t.Fatalf("%s: encode failed: %v", tc.schema, err)
		}
		var got map[string]string
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("%s: body is not JSON: %v", tc.schema, err)
		}
		if got[tc.identField] != "a@x.com" || got[tc.secretField] != "p1" || len(got) != 2 {
			t.Fatalf("%s: unexpected body %s", tc.schema, body)
		}
	}
}

func TestSchemaDecodeResultCanonical(t *testing.T) {
	res, err := SchemaCanonical.DecodeResult([]byte(`{
		"subjectId": "u1",
		"subjectRole": "admin",
		"token": "tok-1",
		"lastActivity": "2024-03-01T10:00:00Z",
		"tokenExpiration": "2024-03-01T11:00:00Z"
	}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if res.SubjectID != "u1" || res.Token != "tok-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if role, ok := res.SubjectRole.Get(); !ok || role != "admin" {
		t.Fatalf("expected role admin, got %q present=%v", role, ok)
	}
	want := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	if exp, ok := res.TokenExpiration.Get(); !ok || !exp.Equal(want) {
		t.Fatalf("expected expiration %v, got %v", want, exp)
	}
}

func TestSchemaDecodeResultAbsentRoleIsNone(t *testing.T) {
	res, err := SchemaCanonical.DecodeResult([]byte(`{"subjectId":"u1","token":"tok-1","subjectRole":null}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if res.SubjectRole.Present() {
		t.Fatal("expected null role to decode as absent")
	}
	if res.LastActivity.Present() || res.TokenExpiration.Present() {
		t.Fatal("expected absent timestamps")
	}
}

func TestSchemaDecodeResultEmptyRoleIsPresent(t *testing.T) {
	res, err := SchemaCanonical.DecodeResult([]byte(`{"subjectId":"u1","token":"tok-1","subjectRole":""}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if role, ok := res.SubjectRole.Get(); !ok || role != "" {
		t.Fatal("expected empty role to stay present")
	}
}

func TestSchemaDecodeResultLegacyNames(t *testing.T) {
	res, err := SchemaUser.DecodeResult([]byte(`{"UserID":"u7","UserRole":"staff","Token":"tok-7","TokenExpiration":"2024-03-01T11:00:00"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if res.SubjectID != "u7" || res.Token != "tok-7" || res.SubjectRole.OrElse("") != "staff" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.TokenExpiration.Present() {
		t.Fatal("expected zone-less timestamp to parse")
	}

	res, err = SchemaAccount.DecodeResult([]byte(`{"accountId":"a1","accountType":"student","token":"tok-a"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if res.SubjectID != "a1" || res.SubjectRole.OrElse("") != "student" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSchemaDecodeResultMalformed(t *testing.T) {
	bodies := []string{
		`<html>`,
		`[]`,
		`{"token":"tok-1"}`,
		`{"subjectId":"u1"}`,
		`{"subjectId":"","token":"tok-1"}`,
		`{"subjectId":42,"token":"tok-1"}`,
		`{"subjectId":"u1","token":"tok-1","subjectRole":7}`,
	}
	for _, body := range bodies {
		if _, err := SchemaCanonical.DecodeResult([]byte(body)); !errors.Is(err, ErrMalformedResult) {
			t.Fatalf("body %s: expected ErrMalformedResult, got %v", body, err)
		}
	}
}

func TestSchemaDecodeResultEmptyIsAbsent(t *testing.T) {
	for _, body := range []string{``, `null`, "  null\n", " \n"} {
		_, err := SchemaCanonical.DecodeResult([]byte(body))
		if !errors.Is(err, ErrRejected) || !Absent(err) {
			t.Fatalf("body %q: expected an absent result, got %v", body, err)
		}
	}
}

func TestSchemaDecodeResultBadTimestampIsNone(t *testing.T) {
	res, err := SchemaCanonical.DecodeResult([]byte(`{"subjectId":"u1","token":"tok-1","lastActivity":"yesterday","tokenExpiration":12}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if res.LastActivity.Present() || res.TokenExpiration.Present() {
		t.Fatal("expected unparseable timestamps to be absent")
	}
}

func TestSchemaEncodeResultRoundTrip(t *testing.T) {
	in := ValidationResult{
		SubjectID:       "u1",
		Token:           "tok-1",
		TokenExpiration: Some(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	for _, schema := range []Schema{SchemaCanonical, SchemaUser, SchemaAccount} {
		body, err := schema.EncodeResult(in)
		if err != nil {
			t.Fatalf("%s: encode failed: %v", schema, err)
		}
		out, err := schema.DecodeResult(body)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", schema, err)
		}
		if out.SubjectID != "u1" || out.Token != "tok-1" || out.SubjectRole.Present() {
			t.Fatalf("%s: unexpected result %+v", schema, out)
		}
	}
}

func TestValidationResultStringOmitsToken(t *testing.T) {
	res := ValidationResult{SubjectID: "u1", Token: "tok-secret"}
	if s := res.String(); strings.Contains(s, "tok-secret") {
		t.Fatalf("token leaked in %q", s)
	}
	cred := Credential{Identifier: "a@x.com", Secret: "hunter2"}
	if s := cred.String(); strings.Contains(s, "hunter2") {
		t.Fatalf("secret leaked in %q", s)
	}
}
