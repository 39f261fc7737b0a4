package utils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"1,234.50":    "1234.5",
		"Rs 500":      "500",
		"Rs. 1,000":   "1000",
		"INR 20,000":  "20000",
		"₹99.99":      "99.99",
		"-250":        "-250",
		"INR -20,000": "-20000",
		"  42  ":      "42",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) error: %v", in, err)
		}
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("ParseAmount(%q) = %s, want %s", in, got, want)
		}
	}
	for _, bad := range []string{"", "abc", "12abc", "Rs", "1.2.3", "$5"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Fatalf("ParseAmount(%q) should fail", bad)
		}
	}
}

func TestParseFlexibleDate(t *testing.T) {
	want := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-03-05", "05/03/2024", "5/3/2024", "05-03-2024", "5 Mar 2024", "05 Mar 2024"} {
		got, err := ParseFlexibleDate(in)
		if err != nil {
			t.Fatalf("ParseFlexibleDate(%q) error: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseFlexibleDate(%q) = %v", in, got)
		}
	}
	if _, err := ParseFlexibleDate("31/02/2024"); err == nil {
		t.Fatalf("impossible date accepted")
	}
	if _, err := ParseFlexibleDate("tomorrow"); err == nil {
		t.Fatalf("garbage accepted")
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 30, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 2, 2, 1, 0, 0, 0, time.UTC)
	if d := DaysBetween(a, b); d != 3 {
		t.Fatalf("DaysBetween = %d", d)
	}
	if d := DaysBetween(b, a); d != -3 {
		t.Fatalf("DaysBetween reversed = %d", d)
	}
	if d := DaysBetween(a, a); d != 0 {
		t.Fatalf("same day = %d", d)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	if len(got) != 3 || got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("UniqueSlice = %v", got)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := ValidatePhoneNumber("+91 98765 43210", "IN"); err != nil {
		t.Fatalf("valid number rejected: %v", err)
	}
	if err := ValidatePhoneNumber("12", "IN"); err == nil {
		t.Fatalf("short number accepted")
	}
}

func TestObjectKeyRoundTrip(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "")
	t.Setenv("GCS_URL", "")
	t.Setenv("GCS_BUCKET", "rentiq-docs")
	key := "biz/challans/12/receipt.png"
	u := BuildObjectAccessURL(key)
	if u != "https://storage.googleapis.com/rentiq-docs/biz/challans/12/receipt.png" {
		t.Fatalf("url = %s", u)
	}
	if got := ExtractObjectKeyFromURL(u); got != key {
		t.Fatalf("key = %s", got)
	}
	if got := ExtractObjectKeyFromURL("gs://rentiq-docs/" + key); got != key {
		t.Fatalf("gs key = %s", got)
	}
	if got := ExtractObjectKeyFromURL("biz/../etc/passwd"); got != "" {
		t.Fatalf("traversal accepted: %s", got)
	}
}

func TestThumbnail(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1200, 600))
	for x := 0; x < 1200; x++ {
		img.Set(x, 10, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	thumb, err := MakeThumbnail(buf.Bytes())
	if err != nil {
		t.Fatalf("MakeThumbnail: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatal(err)
	}
	if format != "jpeg" || cfg.Width != 320 || cfg.Height != 160 {
		t.Fatalf("thumb = %s %dx%d", format, cfg.Width, cfg.Height)
	}
	if ThumbnailKey("biz/docs/a.png") != "biz/docs/thumbs/a.jpg" {
		t.Fatalf("thumb key = %s", ThumbnailKey("biz/docs/a.png"))
	}
	if _, err := MakeThumbnail([]byte("not an image")); err == nil {
		t.Fatalf("garbage decoded")
	}
}

func TestServiceToken(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	tok, exp, err := JwtGenerate("42", 7, "biz-1", "erp-sync", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past")
	}
	claim, err := JwtValidate(tok)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	if claim.UserId != 7 || claim.BusinessId != "biz-1" || claim.Id != "42" {
		t.Fatalf("claim = %+v", claim)
	}

	t.Setenv("API_SECRET", "other-secret")
	if _, err := JwtValidate(tok); err == nil {
		t.Fatalf("token accepted with wrong secret")
	}
}

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short"); err != ErrPasswordTooShort {
		t.Fatalf("short password err = %v", err)
	}
	h, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if ComparePassword(string(h), "correct horse") != nil {
		t.Fatalf("password mismatch")
	}
	if ComparePassword(string(h), "wrong horse") == nil {
		t.Fatalf("wrong password accepted")
	}
}

func TestResolveSignerFromEnv(t *testing.T) {
	t.Setenv("GCS_CREDENTIALS_JSON", "")
	t.Setenv("GCS_SIGNER_EMAIL", "signer@project.iam.gserviceaccount.com")
	t.Setenv("GCS_SIGNER_PRIVATE_KEY", `-----BEGIN KEY-----\nabc\n-----END KEY-----`)

	s, err := resolveSigner(context.Background())
	if err != nil {
		t.Fatalf("resolveSigner: %v", err)
	}
	if s.accessID != "signer@project.iam.gserviceaccount.com" || s.signBytes != nil {
		t.Fatalf("unexpected signer %+v", s)
	}
	if string(s.privateKey) != "-----BEGIN KEY-----\nabc\n-----END KEY-----" {
		t.Fatalf("newlines not restored: %q", s.privateKey)
	}

	t.Setenv("GCS_CREDENTIALS_JSON", `{"client_email":"a@b.c"}`)
	if _, err := resolveSigner(context.Background()); err == nil {
		t.Fatal("credentials without a private key must fail")
	}
}

func TestDetectUploadType(t *testing.T) {
	zip := []byte("PK\x03\x04\x14\x00\x06\x00")
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"book.xlsx", zip, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"letter.docx", zip, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"bundle.zip", zip, "application/zip"},
		{"clients.csv", []byte("name,phone\nAcme,1\n"), "text/csv"},
		{"invoice.pdf", []byte("%PDF-1.7\n"), "application/pdf"},
	}
	for _, c := range cases {
		if got := DetectUploadType(c.name, c.data); got != c.want {
			t.Fatalf("DetectUploadType(%s) = %s, want %s", c.name, got, c.want)
		}
	}
}
