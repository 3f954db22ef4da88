// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/runlens-ai/runlens/pkg/validation"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/gitdiff"
)

var diffTracer = otel.Tracer("runlens.dashboard.handlers")

// HandleCommitDiff returns one commit's metadata and per-file change
// stats from the configured local repository. The raw patch text is
// omitted unless ?raw=true.
//
// GET /v1/diff/:sha
func HandleCommitDiff(repo *gitdiff.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := diffTracer.Start(c.Request.Context(), "HandleCommitDiff")
		defer span.End()

		sha := c.Param("sha")
		if err := validation.ValidateCommitSHA(sha); err != nil {
			abortWithError(c, observability.EndpointDiff, errValidation(err))
			return
		}

		commit, err := repo.CommitDiff(ctx, sha)
		if err != nil {
			span.RecordError(err)
			slog.Error("commit diff failed", "sha", sha, "error", err)
			abortWithError(c, observability.EndpointDiff, err)
			return
		}

		if c.Query("raw") != "true" {
			commit.Raw = ""
		}
		recordSuccess(observability.EndpointDiff)
		c.JSON(http.StatusOK, commit)
	}
}
