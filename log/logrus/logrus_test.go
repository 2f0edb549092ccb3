package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/guardcache"
)

func TestLogrusLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Error("flag release failed", guardcache.Fields{"key": "k"})

	last := hook.LastEntry()
	if last == nil || last.Level != logrus.ErrorLevel || last.Message != "flag release failed" {
		t.Fatalf("unexpected entry: %+v", last)
	}
	if last.Data["key"] != "k" {
		t.Fatalf("missing field, data=%v", last.Data)
	}
}
