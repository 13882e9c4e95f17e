package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogDefs(t *testing.T) map[string]Definition {
	t.Helper()
	defs := make(map[string]Definition)
	for _, def := range Catalog() {
		defs[def.Name] = def
	}
	return defs
}

func indexOf(t *testing.T, ordered []string, name string) int {
	t.Helper()
	for i, n := range ordered {
		if n == name {
			return i
		}
	}
	t.Fatalf("metric %q missing from order %v", name, ordered)
	return -1
}

func TestTopoSortOrdersDependenciesFirst(t *testing.T) {
	defs := catalogDefs(t)

	ordered, err := topoSort(defs, TriggerMetrics(TriggerContractorChanged))
	require.NoError(t, err)

	score := indexOf(t, ordered, MetricContractorSafetyScore)
	assert.Greater(t, score, indexOf(t, ordered, MetricContractorSafetyHistory))
	assert.Greater(t, score, indexOf(t, ordered, MetricContractorProjectExecution))
	assert.Greater(t, score, indexOf(t, ordered, MetricContractorSafetyRating))
	assert.Greater(t, indexOf(t, ordered, MetricGlobalContractorSafetyScoreAvg), score)
	assert.Greater(t,
		indexOf(t, ordered, MetricGlobalContractorSafetyScoreStdDev),
		indexOf(t, ordered, MetricGlobalContractorSafetyScoreAvg),
		"stddev reads the stored average")
}

func TestTopoSortIsDeterministic(t *testing.T) {
	defs := catalogDefs(t)
	names := TriggerMetrics(TriggerIncidentChanged)

	first, err := topoSort(defs, names)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := topoSort(defs, names)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTopoSortRejectsCycles(t *testing.T) {
	defs := map[string]Definition{
		"a": {Name: "a", DependsOn: []string{"b"}},
		"b": {Name: "b", DependsOn: []string{"a"}},
	}
	_, err := topoSort(defs, []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestTopoSortIgnoresEdgesOutsideTheSet(t *testing.T) {
	defs := catalogDefs(t)

	// The task trigger set includes the project score but not the
	// contractor metrics it has no edge to; sorting must not pull them in.
	ordered, err := topoSort(defs, TriggerMetrics(TriggerTaskChanged))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		MetricTaskSpecificRiskScore,
		MetricTotalProjectLocationRiskScore,
		MetricTotalProjectRiskScore,
	}, ordered)
	assert.Less(t,
		indexOf(t, ordered, MetricTaskSpecificRiskScore),
		indexOf(t, ordered, MetricTotalProjectLocationRiskScore))
}

func TestEveryTriggerKindMapsToKnownMetrics(t *testing.T) {
	defs := catalogDefs(t)
	for _, kind := range []TriggerKind{
		TriggerProjectChanged, TriggerLocationChanged, TriggerActivityChanged,
		TriggerTaskChanged, TriggerSiteConditionChanged, TriggerIncidentChanged,
		TriggerContractorChanged, TriggerSupervisorChanged,
	} {
		names := TriggerMetrics(kind)
		require.NotEmpty(t, names, "trigger %q", kind)
		for _, name := range names {
			_, ok := defs[name]
			assert.True(t, ok, "trigger %q names unknown metric %q", kind, name)
		}
	}
}
