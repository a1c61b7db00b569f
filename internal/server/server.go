// Package server exposes the read-only HTTP API.
package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/naka-gawa/repo-pulse/internal/storage"
	"github.com/sirupsen/logrus"
)

// VersionReader reports the version of the database server.
type VersionReader interface {
	Version(ctx context.Context) (string, error)
}

// New builds the application. A nil reader means the database pool is not
// available, and the version endpoint answers 503.
func New(reader VersionReader, logger *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		logger.WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"status": c.Response().StatusCode(),
		}).Debug("Handled request")
		return err
	})

	api := app.Group("/api")
	NewVersionHandler(reader, logger).Register(api)
	return app
}

type VersionHandler struct {
	reader VersionReader
	logger *logrus.Logger
}

func NewVersionHandler(reader VersionReader, logger *logrus.Logger) *VersionHandler {
	return &VersionHandler{reader: reader, logger: logger}
}

func (h *VersionHandler) Register(r fiber.Router) {
	r.Get("/db_version", h.version)
}

func (h *VersionHandler) version(c *fiber.Ctx) error {
	if h.reader == nil {
		return detail(c, fiber.StatusServiceUnavailable, "Database connection pool is not initialized")
	}

	version, err := h.reader.Version(c.UserContext())
	switch {
	case errors.Is(err, storage.ErrVersionNotFound):
		return detail(c, fiber.StatusNotFound, "Database version not found")
	case err != nil:
		h.logger.WithError(err).Error("Failed to fetch database version")
		return detail(c, fiber.StatusInternalServerError, "Failed to fetch database version")
	}
	return c.JSON(fiber.Map{"version": version})
}

func detail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"detail": message})
}
