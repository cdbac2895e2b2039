// Package calendar applies tracked events to Google Calendar.
//
// The client only ever touches entries it created itself; every entry
// carries private extended properties with the tracking ID. Deleting an
// entry that no longer exists is treated as success, so cleanup can be
// retried safely.
package calendar
