package locker

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMapLocker(t *testing.T) {
	Convey("same key is mutually exclusive", t, func() {
		ml := NewMapLocker()
		counter := 0
		wg := sync.WaitGroup{}
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ml.Lock("run")
				counter++
				ml.Unlock("run")
			}()
		}
		wg.Wait()
		So(counter, ShouldEqual, 50)
		So(ml.Len(), ShouldEqual, 0)
	})

	Convey("different keys do not block each other", t, func() {
		ml := NewMapLocker()
		ml.Lock("a")
		ml.Lock("b")
		So(ml.Len(), ShouldEqual, 2)
		ml.Unlock("a")
		ml.Unlock("b")
		So(ml.Len(), ShouldEqual, 0)
	})

	Convey("unlocking an unknown key panics", t, func() {
		So(func() { NewMapLocker().Unlock("x") }, ShouldPanic)
	})
}
