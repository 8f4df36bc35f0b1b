package timers

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("TimerTable", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		table      *TimerTable
	)

	dummyCallback := func(h Handle, context any) {}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)
		table = NewTimerTable(timeTeller, 10*time.Millisecond)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should create a timer", func() {
		h := table.Create("T", 100*time.Millisecond, SingleShot,
			nil, dummyCallback)

		Expect(h).NotTo(Equal(InvalidHandle))
		Expect(table.Name(h)).To(Equal("T"))
		Expect(table.Period(h)).To(Equal(100 * time.Millisecond))
		Expect(table.Behavior(h)).To(Equal(SingleShot))
		Expect(table.IsActive(h)).To(BeFalse())
	})

	It("should assign handles as slot index plus one", func() {
		h1 := table.Create("T1", 10*time.Millisecond, SingleShot, nil, nil)
		h2 := table.Create("T2", 10*time.Millisecond, SingleShot, nil, nil)
		h3 := table.Create("T3", 10*time.Millisecond, SingleShot, nil, nil)

		Expect(h1).To(Equal(Handle(1)))
		Expect(h2).To(Equal(Handle(2)))
		Expect(h3).To(Equal(Handle(3)))
	})

	It("should refuse a period that is not a multiple of the quantum", func() {
		h := table.Create("T", 3*time.Millisecond, SingleShot,
			nil, dummyCallback)

		Expect(h).To(Equal(InvalidHandle))
	})

	It("should refuse a non-positive period", func() {
		Expect(table.Create("T", 0, SingleShot, nil, nil)).
			To(Equal(InvalidHandle))
		Expect(table.Create("T", -10*time.Millisecond, SingleShot, nil, nil)).
			To(Equal(InvalidHandle))
	})

	It("should grow beyond the initial capacity", func() {
		for i := 0; i < initialSlotCount+5; i++ {
			h := table.Create("T", 10*time.Millisecond, SingleShot, nil, nil)
			Expect(h).To(Equal(Handle(i + 1)))
		}

		Expect(table.Handles()).To(HaveLen(initialSlotCount + 5))
	})

	It("should recycle a deleted slot", func() {
		h1 := table.Create("T1", 10*time.Millisecond, SingleShot, nil, nil)
		h2 := table.Create("T2", 10*time.Millisecond, SingleShot, nil, nil)

		Expect(table.Delete(h1)).To(BeTrue())

		h3 := table.Create("T3", 10*time.Millisecond, SingleShot, nil, nil)
		Expect(h3).To(Equal(h1))
		Expect(table.Name(h3)).To(Equal("T3"))
		Expect(table.Name(h2)).To(Equal("T2"))
	})

	It("should invalidate a stale handle on delete", func() {
		h := table.Create("T", 10*time.Millisecond, SingleShot, nil, nil)

		Expect(table.Delete(h)).To(BeTrue())

		Expect(table.Delete(h)).To(BeFalse())
		Expect(table.Start(h)).To(BeFalse())
		Expect(table.Stop(h)).To(BeFalse())
		Expect(table.IsActive(h)).To(BeFalse())
		Expect(table.ExpiryTime(h)).To(Equal(NoExpiry))
	})

	It("should reject out-of-range handles", func() {
		Expect(table.Delete(InvalidHandle)).To(BeFalse())
		Expect(table.Delete(Handle(99))).To(BeFalse())
		Expect(table.Start(InvalidHandle)).To(BeFalse())
		Expect(table.SetBehavior(Handle(99), AutoReload)).To(BeFalse())
		Expect(table.SetContext(Handle(99), nil)).To(BeFalse())
	})

	It("should arm a timer on start", func() {
		timeTeller.EXPECT().CurrentTime().
			Return(50 * time.Millisecond).AnyTimes()

		h := table.Create("T", 100*time.Millisecond, SingleShot, nil, nil)
		Expect(table.Start(h)).To(BeTrue())

		Expect(table.IsActive(h)).To(BeTrue())
		Expect(table.ExpiryTime(h)).To(Equal(150 * time.Millisecond))
	})

	It("should disarm a timer on stop, keeping its configuration", func() {
		timeTeller.EXPECT().CurrentTime().Return(time.Duration(0)).AnyTimes()

		h := table.Create("T", 100*time.Millisecond, AutoReload, nil, nil)
		table.Start(h)

		Expect(table.Stop(h)).To(BeTrue())

		Expect(table.IsActive(h)).To(BeFalse())
		Expect(table.ExpiryTime(h)).To(Equal(NoExpiry))
		Expect(table.Period(h)).To(Equal(100 * time.Millisecond))
		Expect(table.Behavior(h)).To(Equal(AutoReload))
	})

	It("should re-arm a full period on reset", func() {
		now := time.Duration(0)
		timeTeller.EXPECT().CurrentTime().
			DoAndReturn(func() time.Duration { return now }).AnyTimes()

		h := table.Create("T", 100*time.Millisecond, SingleShot, nil, nil)
		table.Start(h)

		now = 70 * time.Millisecond
		Expect(table.Reset(h)).To(BeTrue())

		Expect(table.ExpiryTime(h)).To(Equal(170 * time.Millisecond))
	})

	It("should re-arm with the new period on change", func() {
		now := time.Duration(0)
		timeTeller.EXPECT().CurrentTime().
			DoAndReturn(func() time.Duration { return now }).AnyTimes()

		h := table.Create("T", 100*time.Millisecond, SingleShot, nil, nil)
		table.Start(h)

		now = 50 * time.Millisecond
		Expect(table.ChangePeriod(h, 30*time.Millisecond)).To(BeTrue())

		Expect(table.Period(h)).To(Equal(30 * time.Millisecond))
		Expect(table.ExpiryTime(h)).To(Equal(80 * time.Millisecond))
	})

	It("should refuse a period change that violates the quantum", func() {
		h := table.Create("T", 100*time.Millisecond, SingleShot, nil, nil)

		Expect(table.ChangePeriod(h, 3*time.Millisecond)).To(BeFalse())
		Expect(table.ChangePeriod(h, 0)).To(BeFalse())
		Expect(table.ChangePeriod(h, -10*time.Millisecond)).To(BeFalse())

		Expect(table.Period(h)).To(Equal(100 * time.Millisecond))
	})

	It("should change behavior without touching the arming state", func() {
		timeTeller.EXPECT().CurrentTime().Return(time.Duration(0)).AnyTimes()

		h := table.Create("T", 100*time.Millisecond, SingleShot, nil, nil)
		table.Start(h)

		Expect(table.SetBehavior(h, AutoReload)).To(BeTrue())

		Expect(table.Behavior(h)).To(Equal(AutoReload))
		Expect(table.IsActive(h)).To(BeTrue())
		Expect(table.ExpiryTime(h)).To(Equal(100 * time.Millisecond))
	})

	It("should replace the context", func() {
		h := table.Create("T", 100*time.Millisecond, SingleShot,
			"old", nil)

		Expect(table.SetContext(h, "new")).To(BeTrue())

		Expect(table.Context(h)).To(Equal("new"))
	})

	It("should panic when an accessor gets an invalid handle", func() {
		Expect(func() { table.Name(InvalidHandle) }).To(Panic())
		Expect(func() { table.Period(Handle(99)) }).To(Panic())

		h := table.Create("T", 10*time.Millisecond, SingleShot, nil, nil)
		table.Delete(h)
		Expect(func() { table.Behavior(h) }).To(Panic())
		Expect(func() { table.Context(h) }).To(Panic())
	})

	It("should list live handles in slot order", func() {
		h1 := table.Create("T1", 10*time.Millisecond, SingleShot, nil, nil)
		h2 := table.Create("T2", 10*time.Millisecond, SingleShot, nil, nil)
		h3 := table.Create("T3", 10*time.Millisecond, SingleShot, nil, nil)

		table.Delete(h2)

		Expect(table.Handles()).To(Equal([]Handle{h1, h3}))
	})
})
