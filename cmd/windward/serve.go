// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// runServe starts the scheduler and the admin HTTP surface and blocks
// until SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, config, memoryStore)
	if err != nil {
		return err
	}
	defer a.Close()

	if config.OTelEndpoint != "" {
		cleanup, err := initTracer(ctx, config.OTelEndpoint)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		defer cleanup(context.Background())
	}

	if err := a.registerJobs(); err != nil {
		return err
	}
	if config.SchedulerEnabled {
		a.sched.Start()
	} else {
		a.logger.Warn("scheduler disabled, jobs run only on manual trigger")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("admin surface listening",
			"port", config.Port, "environment", config.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// newRouter builds the admin surface: health, Prometheus metrics, job
// inspection and triggering, breaker snapshots, and the roll-up
// refresh hook.
func newRouter(a *app) *gin.Engine {
	switch {
	case a.cfg.GinMode != "":
		gin.SetMode(a.cfg.GinMode)
	case a.cfg.Environment == "prod":
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"environment": a.cfg.Environment,
			"scheduler":   a.sched.Running(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/jobs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"jobs": a.sched.Jobs()})
	})
	v1.POST("/jobs/:id/trigger", func(c *gin.Context) {
		id := c.Param("id")
		if err := a.sched.Trigger(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": id, "triggered": true})
	})
	v1.GET("/jobs/:id/executions", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		logs, err := a.store.RecentExecutions(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"executions": logs})
	})
	v1.GET("/breakers", func(c *gin.Context) {
		statuses := a.deps.Breakers.Statuses()
		a.metrics.ObserveBreakers(statuses)
		c.JSON(http.StatusOK, gin.H{"breakers": statuses})
	})
	v1.POST("/rollups/refresh", func(c *gin.Context) {
		if err := a.series.RefreshRollups(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"refreshed": true})
	})

	return r
}

// initTracer wires the OTLP/gRPC trace exporter and installs the
// global tracer provider.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("windward")))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
