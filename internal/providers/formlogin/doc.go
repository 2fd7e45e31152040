// Package formlogin is the browserless interactive session.
//
// It fetches the login page, copies every form field including the nonce,
// fills in the account and posts the form with its own cookie jar. The jar's
// cookies for the login URL become the harvested credentials. Token pages are
// read through the same jar.
//
// Use it where no Chrome is available, or against sites whose login form
// needs no JavaScript.
package formlogin
