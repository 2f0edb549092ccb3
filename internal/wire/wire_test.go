package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func mustDecode(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return e
}

func TestEncodeDecodeForeverAndTimed(t *testing.T) {
	at := time.Unix(1700000000, 123456789)
	cases := []struct {
		exp     time.Time
		payload []byte
	}{
		{time.Time{}, nil},
		{time.Time{}, []byte("hello")},
		{at, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		e := mustDecode(t, Encode(tc.exp, tc.payload))
		if !e.ExpiresAt.Equal(tc.exp) {
			t.Fatalf("expiry mismatch: got %v want %v", e.ExpiresAt, tc.exp)
		}
		if !bytes.Equal(e.Payload, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", e.Payload, tc.payload)
		}
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	if (Entry{}).Expired(now) {
		t.Fatalf("forever entry must not expire")
	}
	if !(Entry{ExpiresAt: now}).Expired(now) {
		t.Fatalf("entry at its expiry instant is expired")
	}
	if (Entry{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Fatalf("future expiry reported as expired")
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc := Encode(time.Time{}, []byte("x"))
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestDecodeCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(time.Time{}, []byte("abc"))

	bad := append([]byte(nil), enc...)
	bad[0] = 'X'
	if _, err := Decode(bad); err != ErrCorrupt {
		t.Fatalf("bad magic: want ErrCorrupt, got %v", err)
	}

	bad = append([]byte(nil), enc...)
	bad[4] = version + 1
	if _, err := Decode(bad); err != ErrCorrupt {
		t.Fatalf("bad version: want ErrCorrupt, got %v", err)
	}

	bad = append([]byte(nil), enc...)
	bad[5] = 9
	if _, err := Decode(bad); err != ErrCorrupt {
		t.Fatalf("bad kind: want ErrCorrupt, got %v", err)
	}

	bad = append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(bad[14:18], 100)
	if _, err := Decode(bad); err != ErrCorrupt {
		t.Fatalf("oversized vlen: want ErrCorrupt, got %v", err)
	}

	bad = append([]byte(nil), enc...)
	binary.BigEndian.PutUint64(bad[6:14], 1<<63)
	if _, err := Decode(bad); err != ErrCorrupt {
		t.Fatalf("negative expiry: want ErrCorrupt, got %v", err)
	}

	if _, err := Decode(enc[:headerLen-1]); err != ErrCorrupt {
		t.Fatalf("short header: want ErrCorrupt, got %v", err)
	}
}
