// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package example

import (
	"testing"

	. "gopkg.in/check.v1"
)

func TestExample(t *testing.T) { TestingT(t) }

type exampleSuite struct{}

var _ = Suite(&exampleSuite{})

func (s *exampleSuite) TestExampleRuns(c *C) {
	example()
}
