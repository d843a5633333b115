package passwd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func mustHasher(t *testing.T, c *PBKDF2Configuration) *PBKDF2 {
	t.Helper()
	hasher, err := NewHasherPBKDF2(c)
	if err != nil {
		t.Fatalf("NewHasherPBKDF2 failed: %v", err)
	}
	return hasher
}

func TestGenerateAndCompare(t *testing.T) {
	tests := []struct {
		name   string
		format HashFormat
	}{
		{name: "current format", format: FormatCurrent},
		{name: "legacy format", format: FormatLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasher := mustHasher(t, &PBKDF2Configuration{Format: tt.format})
			hash, err := hasher.Generate(context.Background(), []byte("correct horse battery"))
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}

			ok, err := hasher.Compare(context.Background(), hash, []byte("correct horse battery"))
			if err != nil {
				t.Fatalf("Compare failed: %v", err)
			}
			if !ok {
				t.Error("expected the correct secret to verify")
			}

			ok, err = hasher.Compare(context.Background(), hash, []byte("incorrect horse battery"))
			if err != nil {
				t.Fatalf("Compare failed: %v", err)
			}
			if ok {
				t.Error("expected the wrong secret to be rejected")
			}
		})
	}
}

func TestGenerateRejectsShortSecret(t *testing.T) {
	hasher := mustHasher(t, nil)

	tests := []struct {
		name   string
		secret string
	}{
		{name: "empty", secret: ""},
		{name: "two characters", secret: "ab"},
		{name: "whitespace only", secret: "      "},
		{name: "short after trimming", secret: "  abcd  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := hasher.Generate(context.Background(), []byte(tt.secret)); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Generate(%q) error = %v, want ErrInvalidInput", tt.secret, err)
			}
		})
	}

	accepted := []string{"abcdef", "  abcdef  ", "日本語日本語"}
	for _, secret := range accepted {
		if _, err := hasher.Generate(context.Background(), []byte(secret)); err != nil {
			t.Errorf("Generate(%q) error = %v, want nil", secret, err)
		}
	}

	// The policy check runs before any format specific work.
	legacy := mustHasher(t, &PBKDF2Configuration{Format: FormatLegacy})
	if _, err := legacy.Generate(context.Background(), []byte("ab")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("legacy Generate error = %v, want ErrInvalidInput", err)
	}
}

func TestGenerateSaltUniqueness(t *testing.T) {
	hasher := mustHasher(t, &PBKDF2Configuration{Iterations: 1000})

	first, err := hasher.Generate(context.Background(), []byte("same secret"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := hasher.Generate(context.Background(), []byte("same secret"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("expected distinct hashes for two calls with the same secret")
	}
	saltOf := func(h []byte) string { return strings.Split(string(h), "$")[2] }
	if saltOf(first) == saltOf(second) {
		t.Error("expected a fresh salt per call")
	}
}

func TestGenerateFormatConformance(t *testing.T) {
	t.Run("current", func(t *testing.T) {
		hasher := mustHasher(t, nil)
		hash, err := hasher.Generate(context.Background(), []byte("super secret"))
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		s := string(hash)
		if !strings.HasPrefix(s, "pbkdf2_sha256$150000$") {
			t.Fatalf("unexpected prefix: %s", s)
		}
		fields := strings.Split(s, "$")
		if len(fields) != 4 {
			t.Fatalf("expected 4 fields, got %d", len(fields))
		}
		salt, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			t.Fatalf("salt is not base64: %v", err)
		}
		if len(salt) != SaltLength {
			t.Errorf("salt length = %d, want %d", len(salt), SaltLength)
		}
		key, err := base64.StdEncoding.DecodeString(fields[3])
		if err != nil {
			t.Fatalf("key is not base64: %v", err)
		}
		if len(key) != CurrentKeyLength {
			t.Errorf("key length = %d, want %d", len(key), CurrentKeyLength)
		}
	})

	t.Run("legacy", func(t *testing.T) {
		hasher := mustHasher(t, &PBKDF2Configuration{Format: FormatLegacy})
		hash, err := hasher.Generate(context.Background(), []byte("super secret"))
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		s := string(hash)
		if !strings.HasPrefix(s, "pbkdf2_sha256$100000$") {
			t.Fatalf("unexpected prefix: %s", s)
		}
		fields := strings.Split(s, "$")
		if len(fields) != 4 {
			t.Fatalf("expected 4 fields, got %d", len(fields))
		}
		if len(fields[2]) != 2*SaltLength {
			t.Errorf("salt field length = %d, want %d", len(fields[2]), 2*SaltLength)
		}
		if len(fields[3]) != 2*LegacyKeyLength {
			t.Errorf("key field length = %d, want %d", len(fields[3]), 2*LegacyKeyLength)
		}
		salt, err := hex.DecodeString(fields[2])
		if err != nil {
			t.Fatalf("salt is not hex: %v", err)
		}
		if len(salt) != SaltLength {
			t.Errorf("salt length = %d, want %d", len(salt), SaltLength)
		}
		key, err := hex.DecodeString(fields[3])
		if err != nil {
			t.Fatalf("key is not hex: %v", err)
		}
		if len(key) != LegacyKeyLength {
			t.Errorf("key length = %d, want %d", len(key), LegacyKeyLength)
		}
	})
}

func TestCompareMalformedHash(t *testing.T) {
	hasher := mustHasher(t, nil)

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "too few fields", encoded: "not$enough$fields"},
		{name: "too many fields", encoded: "pbkdf2_sha256$150000$AA==$AA==$extra"},
		{name: "wrong algorithm tag", encoded: "pbkdf2_sha512$150000$AA==$AA=="},
		{name: "zero iterations", encoded: "pbkdf2_sha256$0$AA==$AA=="},
		{name: "negative iterations", encoded: "pbkdf2_sha256$-150000$AA==$AA=="},
		{name: "non numeric iterations", encoded: "pbkdf2_sha256$abc$AA==$AA=="},
		{name: "empty salt field", encoded: "pbkdf2_sha256$150000$$AA=="},
		{name: "empty key field", encoded: "pbkdf2_sha256$150000$AA==$"},
		{name: "undecodable salt", encoded: "pbkdf2_sha256$150000$!!!!$AA=="},
		{name: "undecodable key", encoded: "pbkdf2_sha256$150000$AA==$****"},
		{name: "whitespace key field", encoded: "pbkdf2_sha256$150000$AA==$\n"},
		{name: "empty string", encoded: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := hasher.Compare(context.Background(), []byte(tt.encoded), []byte("whatever secret"))
			if !errors.Is(err, ErrMalformedHash) {
				t.Errorf("Compare(%q) error = %v, want ErrMalformedHash", tt.encoded, err)
			}
			if ok {
				t.Errorf("Compare(%q) reported a match", tt.encoded)
			}
		})
	}
}

func TestCompareLegacyInterop(t *testing.T) {
	legacy := mustHasher(t, &PBKDF2Configuration{Format: FormatLegacy})
	current := mustHasher(t, nil)
	secret := []byte("legacy password")

	legacyHash, err := legacy.Generate(context.Background(), secret)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	ok, err := legacy.Compare(context.Background(), legacyHash, secret)
	if err != nil || !ok {
		t.Fatalf("legacy hash did not verify on the legacy instance: ok=%v err=%v", ok, err)
	}

	// The legacy fields happen to decode as base64 too, so the current
	// instance derives an incomparable key rather than erroring.
	ok, err = current.Compare(context.Background(), legacyHash, secret)
	if err == nil && ok {
		t.Error("legacy hash must not verify under the current format")
	}

	currentHash, err := current.Generate(context.Background(), secret)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	ok, err = legacy.Compare(context.Background(), currentHash, secret)
	if err == nil && ok {
		t.Error("current hash must not verify under the legacy format")
	}
}

func TestCompareStoredKeyLengthHonored(t *testing.T) {
	issuer := mustHasher(t, &PBKDF2Configuration{KeyLength: 48})
	verifier := mustHasher(t, nil)
	secret := []byte("variable length secret")

	hash, err := issuer.Generate(context.Background(), secret)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	ok, err := verifier.Compare(context.Background(), hash, secret)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if !ok {
		t.Error("expected the stored key's length to drive the comparison derivation")
	}
}

func TestGenerateDeterministicWithFixedRand(t *testing.T) {
	tests := []struct {
		name   string
		format HashFormat
	}{
		{name: "current format", format: FormatCurrent},
		{name: "legacy format", format: FormatLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasher := mustHasher(t, &PBKDF2Configuration{Format: tt.format, Iterations: 1000, Rand: zeroReader{}})
			first, err := hasher.Generate(context.Background(), []byte("fixed salt secret"))
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			second, err := hasher.Generate(context.Background(), []byte("fixed salt secret"))
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if !bytes.Equal(first, second) {
				t.Errorf("expected identical output for a fixed salt, got %s and %s", first, second)
			}
		})
	}
}

func TestGenerateRandFailure(t *testing.T) {
	hasher := mustHasher(t, &PBKDF2Configuration{Rand: failingReader{}})
	if _, err := hasher.Generate(context.Background(), []byte("doomed secret")); !errors.Is(err, ErrCryptoBackend) {
		t.Errorf("Generate error = %v, want ErrCryptoBackend", err)
	}
}

func TestNewHasherPBKDF2Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *PBKDF2Configuration
	}{
		{name: "unknown format", cfg: &PBKDF2Configuration{Format: HashFormat(9)}},
		{name: "negative iterations", cfg: &PBKDF2Configuration{Iterations: -1}},
		{name: "negative key length", cfg: &PBKDF2Configuration{KeyLength: -1}},
		{name: "negative concurrency bound", cfg: &PBKDF2Configuration{MaxConcurrent: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHasherPBKDF2(tt.cfg); !errors.Is(err, ErrCryptoBackend) {
				t.Errorf("NewHasherPBKDF2 error = %v, want ErrCryptoBackend", err)
			}
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	current := mustHasher(t, nil)

	legacyHash, err := mustHasher(t, &PBKDF2Configuration{Format: FormatLegacy}).Generate(context.Background(), []byte("old password"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	currentHash, err := current.Generate(context.Background(), []byte("new password"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	weakHash, err := mustHasher(t, &PBKDF2Configuration{Iterations: 50000}).Generate(context.Background(), []byte("weak password"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	longKeyHash, err := mustHasher(t, &PBKDF2Configuration{KeyLength: 48}).Generate(context.Background(), []byte("long key password"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	tests := []struct {
		name    string
		encoded []byte
		want    bool
	}{
		{name: "current hash", encoded: currentHash, want: false},
		{name: "legacy hash", encoded: legacyHash, want: true},
		{name: "nonstandard iterations", encoded: weakHash, want: true},
		{name: "nonstandard key length", encoded: longKeyHash, want: true},
		{name: "garbage", encoded: []byte("x$y"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := current.NeedsRehash(tt.encoded); got != tt.want {
				t.Errorf("NeedsRehash(%s) = %v, want %v", tt.encoded, got, tt.want)
			}
		})
	}
}

func TestGenerateBoundedConcurrency(t *testing.T) {
	hasher := mustHasher(t, &PBKDF2Configuration{Iterations: 500, MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := hasher.Generate(context.Background(), []byte("parallel secret")); err != nil {
				t.Errorf("Generate failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestMetricsSnapshot(t *testing.T) {
	hasher := mustHasher(t, &PBKDF2Configuration{Iterations: 500})
	ctx := context.Background()

	hash, err := hasher.Generate(ctx, []byte("counted secret"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := hasher.Compare(ctx, hash, []byte("counted secret")); err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if _, err := hasher.Compare(ctx, hash, []byte("wrong secret")); err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if _, err := hasher.Compare(ctx, []byte("garbage"), []byte("counted secret")); err == nil {
		t.Fatal("expected a malformed hash error")
	}

	snapshot := hasher.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricHashesIssued:       1,
		MetricComparesMatched:    1,
		MetricComparesMismatched: 1,
		MetricMalformedRejected:  1,
	}
	for id, count := range want {
		if snapshot.Counters[id] != count {
			t.Errorf("%s = %d, want %d", id.Name(), snapshot.Counters[id], count)
		}
	}

	snapshot.Counters[MetricHashesIssued] = 99
	if hasher.MetricsSnapshot().Counters[MetricHashesIssued] != 1 {
		t.Error("mutating a snapshot must not affect the hasher's counters")
	}
}

func BenchmarkGenerate(b *testing.B) {
	hasher, err := NewHasherPBKDF2(nil)
	if err != nil {
		b.Fatalf("NewHasherPBKDF2 failed: %v", err)
	}
	secret := []byte("benchmark secret")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hasher.Generate(context.Background(), secret); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompare(b *testing.B) {
	hasher, err := NewHasherPBKDF2(nil)
	if err != nil {
		b.Fatalf("NewHasherPBKDF2 failed: %v", err)
	}
	secret := []byte("benchmark secret")
	hash, err := hasher.Generate(context.Background(), secret)
	if err != nil {
		b.Fatalf("Generate failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hasher.Compare(context.Background(), hash, secret); err != nil {
			b.Fatal(err)
		}
	}
}
