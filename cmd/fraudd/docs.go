package main

// General API documentation for swaggo. The served document is kept in
// internal/httpapi/swagger_doc.go (build with -tags swagger).
//
// @title           fraudd API
// @version         1.0
// @description     Fraud model serving gateway: health, prediction and metrics.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
