package registry

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tass-io/trainer/pkg/classifier"
)

func TestDefault(t *testing.T) {
	Convey("default registry holds the seven models in order", t, func() {
		m := Default()
		So(m.Len(), ShouldEqual, 7)
		So(m.Names(), ShouldResemble, []string{"LR", "LSVC", "RFC", "ABC", "GBC", "DTC", "GNB"})
		for _, e := range m.Entries() {
			a, b := e.New(), e.New()
			So(a, ShouldNotBeNil)
			So(a == b, ShouldBeFalse)
		}
	})
}

func TestNew(t *testing.T) {
	nb := func() classifier.Classifier { return classifier.NewGaussianNB() }
	Convey("validate entries", t, func() {
		testcases := []struct {
			caseName  string
			entries   []Entry
			expectErr bool
		}{
			{caseName: "ok", entries: []Entry{{Name: "a", New: nb}, {Name: "b", New: nb}}},
			{caseName: "empty name", entries: []Entry{{Name: "", New: nb}}, expectErr: true},
			{caseName: "duplicated", entries: []Entry{{Name: "a", New: nb}, {Name: "a", New: nb}}, expectErr: true},
			{caseName: "no constructor", entries: []Entry{{Name: "a"}}, expectErr: true},
		}
		for _, testcase := range testcases {
			t.Log(testcase.caseName)
			_, err := New(testcase.entries...)
			So(err != nil, ShouldEqual, testcase.expectErr)
		}
	})

	Convey("entries are copied", t, func() {
		entries := []Entry{{Name: "a", New: nb}}
		m, err := New(entries...)
		So(err, ShouldBeNil)
		entries[0].Name = "changed"
		So(m.Names(), ShouldResemble, []string{"a"})
		got := m.Entries()
		got[0].Name = "changed"
		So(m.Names(), ShouldResemble, []string{"a"})
	})
}
