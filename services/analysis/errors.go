// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import "errors"

// Sentinel errors for the analysis package.
var (
	// ErrValidation indicates input that cannot be featurized, such
	// as an empty run set or runs yielding no usable features.
	ErrValidation = errors.New("invalid analysis input")

	// ErrClustering indicates the engine could not fit the matrix,
	// such as an empty matrix, non-finite values, or a nonsensical
	// cluster count.
	ErrClustering = errors.New("clustering failed")
)
