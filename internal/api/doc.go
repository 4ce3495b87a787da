// Package api serves the catalog listings and the browser direct-upload
// endpoint over HTTP.
package api
