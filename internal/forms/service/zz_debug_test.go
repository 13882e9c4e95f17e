package service

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"worksafe/internal/forms/models"
	id "worksafe/pkg/domain"
	"worksafe/pkg/testutil"
)

func TestZZDebugUpdateContents(t *testing.T) {
	f := newFixture(t)
	ctx, _, _ := testutil.Context(testClock)
	locID := f.seedLocation(t, ctx)

	before := json.RawMessage(`{"additional_information":"clear skies","crew":{"n_welders":2}}`)
	form, err := f.forms.Create(ctx, models.FormDailyReport, locID, id.NewDate(2026, time.March, 10), before)
	fmt.Printf("create err: %+v\n", err)
	if err != nil {
		t.Fatal(err)
	}

	after := json.RawMessage(`{"additional_information":"rain delay","crew":{"n_welders":2,"n_operators":1}}`)
	_, err = f.forms.UpdateContents(ctx, models.FormDailyReport, form.ID, after)
	fmt.Printf("update err: %#v\n", err)
}
