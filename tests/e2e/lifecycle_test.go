//go:build e2e

package e2e

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/orchestration"
)

var _ = Describe("Stack lifecycle", Ordered, func() {
	var applied map[string]any

	It("applies the stack from scratch", func(ctx SpecContext) {
		res, err := newStack().Apply(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Report.Count(engine.StatusFailed)).To(BeZero())

		applied = res.Outputs
		Expect(applied).To(HaveKeyWithValue(orchestration.OutputClusterName, env.QualifiedProject()+"-cluster"))
		Expect(applied).To(HaveKey(orchestration.OutputLoadBalancerDNSName))
		Expect(applied).To(HaveKey(orchestration.OutputCertificateARN))
	}, SpecTimeout(45*time.Minute))

	It("plans no changes on re-apply", func(ctx SpecContext) {
		res, err := newStack().Plan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Plan.Empty()).To(BeTrue(), res.Plan.Summary().String())
	}, SpecTimeout(10*time.Minute))

	It("reads the published outputs from state", func(ctx SpecContext) {
		outputs, err := newStack().Outputs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(Equal(applied))
	}, SpecTimeout(time.Minute))

	It("destroys every resource", func(ctx SpecContext) {
		res, err := newStack().Destroy(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Report.Count(engine.StatusFailed)).To(BeZero())

		outputs, err := newStack().Outputs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(BeEmpty())
	}, SpecTimeout(45*time.Minute))
})
