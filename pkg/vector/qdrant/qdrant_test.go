package qdrant_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/vector"
	"github.com/papercomputeco/parley/pkg/vector/qdrant"
)

var _ = Describe("Driver", func() {
	It("requires a target", func() {
		_, err := qdrant.NewDriver(context.Background(), qdrant.Config{Dimensions: 4}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("target is required")))
	})

	It("requires dimensions", func() {
		_, err := qdrant.NewDriver(context.Background(), qdrant.Config{Target: "localhost:6334"}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("dimensions")))
	})

	It("derives stable UUID point IDs", func() {
		a := qdrant.PointID("conv-1:0:human")
		Expect(a).To(Equal(qdrant.PointID("conv-1:0:human")))
		Expect(a).NotTo(Equal(qdrant.PointID("conv-1:0:ai")))
		Expect(a).To(HaveLen(36))
	})

	It("should implement vector.Driver interface", func() {
		var _ vector.Driver = (*qdrant.Driver)(nil)
	})
})
