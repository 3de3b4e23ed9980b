package pidfile

import "testing"

func FuzzParse(f *testing.F) {
	f.Add("12345")
	f.Add(`{"pid":42,"started_by":"warden","started_at":1700000000}`)
	f.Add(`{"pid":0}`)
	f.Add("not-a-pid\n{}\n")
	f.Fuzz(func(t *testing.T, content string) {
		rec, ok := Parse([]byte(content)) // must never panic
		if ok && rec.PID <= 0 {
			t.Fatalf("Parse accepted non-positive pid: %+v", rec)
		}
	})
}
