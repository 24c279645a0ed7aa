package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
)

const noticeText = `THE UNITED STATES OF AMERICA
Receipt Number SRC2190012345    Case Type I140 - IMMIGRANT PETITION FOR ALIEN WORKER
Received Date 12/15/2020   Priority Date 12/15/2020   Page 1 of 1
Notice Date 03/01/2021
Petitioner: DOE, JANE    Beneficiary: DOE, JANE
Class: E21 - Mbr of Prof w/Adv Deg or of Exceptional Ability - Indiv w/Adv Deg
Nebraska Service Center, P.O. Box 82521, LINCOLN NE 68501`

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	t.Parallel()

	rec := Parse("IOE0010001-1.png", noticeText, Config{})
	assert.Equal(t, "IOE0010001-1.png", rec.Filename)
	assert.True(t, rec.NIW)
	assert.Equal(t, crawler.ServiceCenterSRC, rec.ServiceCenter, "SRC takes precedence over LIN")
	assert.Equal(t, crawler.NewDate(day(2020, 12, 15)), rec.ReceivedDate)
	assert.Equal(t, crawler.NewDate(day(2020, 12, 15)), rec.PriorityDate)
	assert.Equal(t, crawler.NewDate(day(2021, 3, 1)), rec.NoticeDate)
}

func TestParseDashedDates(t *testing.T) {
	t.Parallel()

	text := "Received Date 12-15-2020 Priority Date 12-15-2020 Notice Date 03-01-2021 SRC Indiv w/Adv Deg"
	rec := Parse("b0001-1.png", text, Config{})
	assert.Equal(t, crawler.NewDate(day(2020, 12, 15)), rec.ReceivedDate)
	assert.Equal(t, crawler.NewDate(day(2020, 12, 15)), rec.PriorityDate)
	assert.Equal(t, crawler.NewDate(day(2021, 3, 1)), rec.NoticeDate)
}

func TestParseAllOrNothingDates(t *testing.T) {
	t.Parallel()

	rec := Parse("a0001-1.png", "Received Date 12/15/2020 Priority Date 12/15/2020 Notice Date 3 days ago LIN", Config{})
	assert.False(t, rec.ReceivedDate.Valid)
	assert.False(t, rec.PriorityDate.Valid)
	assert.False(t, rec.NoticeDate.Valid)
	assert.False(t, rec.NIW)
	assert.Equal(t, crawler.ServiceCenterLIN, rec.ServiceCenter)
}

func TestParseNoCenter(t *testing.T) {
	t.Parallel()

	rec := Parse("a0001-1.png", "Texas Service Center", Config{})
	assert.Equal(t, crawler.ServiceCenterNone, rec.ServiceCenter)
}

func TestParseCustomMarkers(t *testing.T) {
	t.Parallel()

	cfg := Config{Markers: []Marker{
		{Token: "LIN", Center: crawler.ServiceCenterLIN},
		{Token: "SRC", Center: crawler.ServiceCenterSRC},
	}}
	assert.Equal(t, crawler.ServiceCenterLIN, Parse("x", noticeText, cfg).ServiceCenter)
}

func TestSearchDates(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		text string
		want []time.Time
	}{
		{"numeric", "Received 12/15/2020 notice 03/01/2021", []time.Time{day(2020, 12, 15), day(2021, 3, 1)}},
		{"iso", "generated 2021-06-30", []time.Time{day(2021, 6, 30)}},
		{"dashed month first", "Received 12-25-2020 notice 1-5-2021", []time.Time{day(2020, 12, 25), day(2021, 1, 5)}},
		{"upper case month", "NOTICE DATE DECEMBER 15, 2020", []time.Time{day(2020, 12, 15)}},
		{"lower case prose", "you may 2020 want to march 2021 on", nil},
		{"capitalised may", "May 2020", []time.Time{day(2020, 5, 1)}},
		{"month name", "December 15, 2020 and Jan. 4th 2021", []time.Time{day(2020, 12, 15), day(2021, 1, 4)}},
		{"day first", "on 15 December 2020", []time.Time{day(2020, 12, 15)}},
		{"month and year", "priority Sept 2019", []time.Time{day(2019, 9, 1)}},
		{"relative", "2 days ago, yesterday, next week", nil},
		{"bare numbers", "Receipt 2190012345 page 1 of 2 amount $700", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			matches := SearchDates(tc.text)
			var got []time.Time
			for _, m := range matches {
				got = append(got, m.Time)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSearchDatesTextOrder(t *testing.T) {
	t.Parallel()

	matches := SearchDates("Notice Date March 1, 2021 then 12/15/2020")
	require.Len(t, matches, 2)
	assert.Less(t, matches[0].Offset, matches[1].Offset)
	assert.Equal(t, "March 1, 2021", matches[0].Text)
}

type stubRecognizer struct {
	text string
	err  error
}

func (s stubRecognizer) Recognize(context.Context, string) (string, error) {
	return s.text, s.err
}

func TestExtractor(t *testing.T) {
	t.Parallel()

	ex := New(stubRecognizer{text: noticeText}, Config{}, nil)
	rec, err := ex.Extract(context.Background(), "/out/IOE0010001-1.png")
	require.NoError(t, err)
	assert.Equal(t, "IOE0010001-1.png", rec.Filename)
	assert.True(t, rec.NIW)

	failing := New(stubRecognizer{err: errors.New("tesseract: exit status 1")}, Config{}, nil)
	_, err = failing.Extract(context.Background(), "/out/x.png")
	require.ErrorIs(t, err, crawler.ErrNoRecord)
}
