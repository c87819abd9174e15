package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestMigrateCommands(t *testing.T) {
	convey.Convey("Given a fresh sqlite file", t, func() {
		dsn := "file:" + filepath.Join(t.TempDir(), "shobdo.db")
		run := func(args ...string) (string, error) {
			app := newApp()
			var out bytes.Buffer
			app.Writer = &out
			err := app.Run(append([]string{"migrate", "--driver", "sqlite", "--dsn", dsn}, args...))
			return out.String(), err
		}

		convey.Convey("When migrations are applied twice", func() {
			first, err := run("up")
			convey.So(err, convey.ShouldBeNil)
			second, err := run("up")
			convey.So(err, convey.ShouldBeNil)
			status, err := run("status")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the second run has nothing to do", func() {
				convey.So(first, convey.ShouldContainSubstring, "migrated to")
				convey.So(second, convey.ShouldContainSubstring, "no new migrations")
				convey.So(status, convey.ShouldContainSubstring, "unapplied: ")
			})

			convey.Convey("Then rolling back undoes the group", func() {
				out, err := run("down")
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "rolled back")

				out, err = run("down")
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "no groups")
			})
		})
	})

	convey.Convey("Given the memory driver", t, func() {
		app := newApp()
		app.Writer = &bytes.Buffer{}

		convey.Convey("Then commands refuse to run", func() {
			err := app.Run([]string{"migrate", "--driver", "memory", "status"})
			convey.So(err, convey.ShouldEqual, errMemoryStore)
		})
	})
}
