package export

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/kinedeck/kinedeck-agent/internal/series"
)

func sampleSeries() *series.Series {
	return &series.Series{
		Time:   []float64{0, 1, 2},
		Force1: []float64{1, 2, 3},
		Force2: []float64{0, 0, 0},
	}
}

func TestData_CutAtSample(t *testing.T) {
	artifact := Data(sampleSeries(), 1)

	if artifact.Name != "trimmed-data.csv" {
		t.Errorf("Name = %q, want trimmed-data.csv", artifact.Name)
	}
	if artifact.MIME != "text/csv" {
		t.Errorf("MIME = %q, want text/csv", artifact.MIME)
	}

	want := "Time,Force1,Force2\n1,2,0\n2,3,0\n"
	if string(artifact.Data) != want {
		t.Fatalf("Data = %q, want %q", artifact.Data, want)
	}
}

func TestData_CutBetweenSamples(t *testing.T) {
	artifact := Data(sampleSeries(), 0.5)

	want := "Time,Force1,Force2\n1,2,0\n2,3,0\n"
	if string(artifact.Data) != want {
		t.Fatalf("Data = %q, want %q", artifact.Data, want)
	}
}

func TestData_CutBeforeStartKeepsEverything(t *testing.T) {
	artifact := Data(sampleSeries(), -5)

	want := "Time,Force1,Force2\n0,1,0\n1,2,0\n2,3,0\n"
	if string(artifact.Data) != want {
		t.Fatalf("Data = %q, want %q", artifact.Data, want)
	}
}

func TestData_CutPastEndIsHeaderOnly(t *testing.T) {
	artifact := Data(sampleSeries(), 10)

	if string(artifact.Data) != "Time,Force1,Force2\n" {
		t.Fatalf("Data = %q, want header only", artifact.Data)
	}
}

func TestData_EmptySeries(t *testing.T) {
	for _, at := range []float64{-1, 0, 5} {
		artifact := Data(&series.Series{}, at)
		if string(artifact.Data) != "Time,Force1,Force2\n" {
			t.Fatalf("Data(empty, %v) = %q, want header only", at, artifact.Data)
		}
	}
}

func TestData_DoesNotMutateSource(t *testing.T) {
	s := sampleSeries()
	Data(s, 1)

	if !reflect.DeepEqual(s.Time, []float64{0, 1, 2}) {
		t.Fatalf("source series mutated: %v", s.Time)
	}
}

// The exported suffix must re-parse to exactly the samples at or after
// the cut time.
func TestData_RoundTripEqualsSuffix(t *testing.T) {
	s := &series.Series{
		Time:   []float64{0, 0.25, 0.5, 0.75, 1},
		Force1: []float64{5, 6, 7, 8, 9},
		Force2: []float64{-1, -2, -3, -4, -5},
	}

	artifact := Data(s, 0.5)
	back := series.Parse(bytes.NewReader(artifact.Data), series.ExportLayout())

	if !reflect.DeepEqual(back.Time, []float64{0.5, 0.75, 1}) {
		t.Errorf("Time = %v", back.Time)
	}
	if !reflect.DeepEqual(back.Force1, []float64{7, 8, 9}) {
		t.Errorf("Force1 = %v", back.Force1)
	}
	if !reflect.DeepEqual(back.Force2, []float64{-3, -4, -5}) {
		t.Errorf("Force2 = %v", back.Force2)
	}
}
