// Package console implements the user-facing operations of the device
// console: registration, login and logout, and the guarded device
// management pages.
//
// Every operation receives the request's explicit auth.Session and
// returns a Result describing what to show next. The presentation layer
// renders Results; it never reaches into the stores directly.
//
//	svc, err := console.New(console.Deps{...})
//	res := svc.AddDevice(ctx, sess, device.Input{Name: "sensor1", Secret: "s3cret"})
//	if res.Redirect != "" {
//	    // follow it
//	}
//
// Operations that need a logged-in user are wrapped with guarded, which
// rejects anonymous sessions before any store is touched.
package console
