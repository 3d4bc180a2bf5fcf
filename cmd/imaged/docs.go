package main

// General API documentation for swaggo. Regenerate internal/httpapi/openapi.json
// with `swag init -g cmd/imaged/docs.go` after changing handlers.
//
// @title           imaged API
// @version         1.0
// @description     HTTP API for local diffusion model management and image generation.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
