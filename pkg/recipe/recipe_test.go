package recipe

import "testing"

func TestStaticReleaseReturnsFixedValue(t *testing.T) {
	r := StaticRelease("1.2.3")
	got, err := r.ReleaseLabel()
	if err != nil || got != "1.2.3" {
		t.Fatalf("expected 1.2.3, got %q, %v", got, err)
	}
}

func TestLabelMapReaderReadsReleaseKey(t *testing.T) {
	l := LabelMapReader{"release": "7", "name": "my-app"}
	got, err := l.ReleaseLabel()
	if err != nil || got != "7" {
		t.Fatalf("expected 7, got %q, %v", got, err)
	}
}

func TestNoPriorResultsAlwaysAbsent(t *testing.T) {
	_, present, err := NoPriorResults{}.FilesystemKojiTaskID()
	if err != nil || present {
		t.Fatalf("expected absent with no error, got present=%v err=%v", present, err)
	}
}

func TestMapPriorResultsAbsentWhenKeyMissing(t *testing.T) {
	_, present, err := MapPriorResults{}.FilesystemKojiTaskID()
	if err != nil || present {
		t.Fatalf("expected absent with no error, got present=%v err=%v", present, err)
	}
}

func TestMapPriorResultsAcceptsIntAndInt64AndNumericString(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"int", 42, "42"},
		{"int64", int64(99), "99"},
		{"numeric string", "123", "123"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := MapPriorResults{"filesystem-koji-task-id": c.value}
			got, present, err := m.FilesystemKojiTaskID()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !present || got != c.want {
				t.Fatalf("expected %q present, got %q present=%v", c.want, got, present)
			}
		})
	}
}

func TestMapPriorResultsRejectsNonNumericStringAsFatal(t *testing.T) {
	m := MapPriorResults{"filesystem-koji-task-id": "not-a-number"}
	_, _, err := m.FilesystemKojiTaskID()
	if err == nil {
		t.Fatal("expected a malformed build descriptor error for a non-numeric string")
	}
}

func TestMapPriorResultsRejectsUnsupportedType(t *testing.T) {
	m := MapPriorResults{"filesystem-koji-task-id": 3.14}
	_, _, err := m.FilesystemKojiTaskID()
	if err == nil {
		t.Fatal("expected a malformed build descriptor error for an unsupported type")
	}
}
