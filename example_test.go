package viewcapture_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/porticus-lab/viewcapture"
)

func Example() {
	c, err := viewcapture.CaptureURL(context.Background(),
		"https://drive.google.com/file/d/FILE_ID/view", "jobs/example",
		viewcapture.WithNoSandbox(),
	)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %d pages written to %s\n", c.Outcome, c.Result.PageCount(), c.Path)
}

func ExampleCapturer() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	capt := viewcapture.NewCapturer(
		viewcapture.WithNoSandbox(),
		viewcapture.WithLogger(logger),
		viewcapture.WithScrollPacing(750*time.Millisecond, 3*time.Second),
		viewcapture.WithPageOrder(true),
	)

	c, err := capt.Capture(context.Background(), "https://drive.google.com/file/d/FILE_ID/view", "jobs/1")
	if err != nil {
		log.Fatal(err)
	}
	if c.Outcome == viewcapture.OutcomePartial {
		fmt.Println("missing pages:", c.MissingPages())
	}
}

func ExampleParseIndicator() {
	fmt.Println(viewcapture.ParseIndicator("3 of 12"))
	fmt.Println(viewcapture.ParseIndicator("Page 7"))
	fmt.Println(viewcapture.ParseIndicator("loading"))
	// Output:
	// 12
	// 7
	// 0
}
