// Package trackdb persists pipeline runs to sqlite so repeated
// analyses of the same delivery are comparable. The schema is managed
// by embedded golang-migrate migrations.
package trackdb
