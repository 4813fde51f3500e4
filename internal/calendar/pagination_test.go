package calendar

import "testing"

func TestPaginate_Basic(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	page := Paginate(items, 1, 5)

	if len(page.Items) != 5 {
		t.Fatalf("expected 5 items on page 1, got %d", len(page.Items))
	}
	if page.HasPrev || !page.HasNext {
		t.Fatalf("first page: HasPrev=%v HasNext=%v", page.HasPrev, page.HasNext)
	}
	if page.Total != len(items) {
		t.Fatalf("expected Total=%d, got %d", len(items), page.Total)
	}
}

func TestPaginate_LastPage(t *testing.T) {
	page := Paginate([]int{1, 2, 3, 4, 5, 6}, 2, 4)

	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items on last page, got %d", len(page.Items))
	}
	if !page.HasPrev || page.HasNext {
		t.Fatalf("last page: HasPrev=%v HasNext=%v", page.HasPrev, page.HasNext)
	}
}

func TestPaginate_PastEnd(t *testing.T) {
	page := Paginate([]int{1, 2, 3}, 5, 2)
	if len(page.Items) != 0 || page.HasNext {
		t.Fatalf("page past the end must be empty, got %v", page.Items)
	}
}

func TestPaginate_Defaults(t *testing.T) {
	var items []int
	page := Paginate(items, 0, 0)

	if page.Page != 1 || page.PageSize != 10 {
		t.Fatalf("expected defaults page=1 size=10, got %d/%d", page.Page, page.PageSize)
	}
	if len(page.Items) != 0 || page.HasNext || page.HasPrev {
		t.Fatalf("expected no items and no prev/next for empty list")
	}
}

func TestOffset(t *testing.T) {
	cases := []struct{ page, size, want int }{
		{1, 20, 0},
		{3, 20, 40},
		{0, 20, 0},
		{2, 0, 0},
	}
	for _, tc := range cases {
		if got := Offset(tc.page, tc.size); got != tc.want {
			t.Fatalf("Offset(%d, %d) = %d, want %d", tc.page, tc.size, got, tc.want)
		}
	}
}
