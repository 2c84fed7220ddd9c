package service

// Layer ids of the default catalog.
const (
	LayerSicar                  = "sicar"
	LayerZoning                 = "zoning"
	LayerPhytoecology           = "phytoecology"
	LayerProtectionArea         = "protection_area"
	LayerIndigenous             = "indigenous"
	LayerQuilombolas            = "quilombolas"
	LayerPaths                  = "paths"
	LayerConservationUnits      = "conservation_units"
	LayerMunicipalBoundaries    = "municipal_boundaries"
	LayerSigef                  = "sigef"
	LayerRuralSettlement        = "rural_settlement"
	LayerSnicTotal              = "snic_total"
	LayerDeforestationMapbiomas = "deforestation_mapbiomas"
	LayerEmbargoes              = "embargoes"
	LayerProdes                 = "prodes"
	LayerIpuca                  = "ipuca"
	LayerHighways               = "highways"
)

// DefaultCatalog returns the reference layers analysed out of the box, in
// report order.
func DefaultCatalog() []LayerConfig {
	layers := []LayerConfig{
		{ID: LayerSicar, Name: "Base de Dados Sicar", IDField: "cod_imovel", Fill: "#f4a261", Stroke: "#e76f51", Registry: true},
		{ID: LayerZoning, Name: "Base de Dados de Zoneamento", Fill: "#a8dadc", Stroke: "#457b9d"},
		{ID: LayerPhytoecology, Name: "Base de Dados de Fitoecologias", Fill: "#95d5b2", Stroke: "#2d6a4f"},
		{ID: LayerProtectionArea, Name: "Base de Dados de APAs", Fill: "#b7e4c7", Stroke: "#40916c"},
		{ID: LayerIndigenous, Name: "Base de Dados de Indígenas", Fill: "#e9c46a", Stroke: "#bc6c25"},
		{ID: LayerQuilombolas, Name: "Base de Dados de Quilombolas", Fill: "#cdb4db", Stroke: "#7b2cbf"},
		{ID: LayerPaths, Name: "Base de Dados de Veredas", Fill: "#90e0ef", Stroke: "#0077b6"},
		{ID: LayerConservationUnits, Name: "Base de Dados de Unidades de Conservação", Fill: "#52b788", Stroke: "#1b4332"},
		{ID: LayerMunicipalBoundaries, Name: "Base de Dados de Municípios", Fill: "#dee2e6", Stroke: "#495057"},
		{ID: LayerSigef, Name: "Base de Dados Sigef", Fill: "#ffd6a5", Stroke: "#fb8500"},
		{ID: LayerRuralSettlement, Name: "Base de Dados de Assentamentos Rurais", Fill: "#fdffb6", Stroke: "#bfa300"},
		{ID: LayerSnicTotal, Name: "Base de Dados SNIC Total", Fill: "#ffc8dd", Stroke: "#c9184a"},
		{ID: LayerDeforestationMapbiomas, Name: "Base de Deforestação Mapbiomas", Fill: "#e63946", Stroke: "#9d0208"},
		{ID: LayerEmbargoes, Name: "Base de Dados de Embargos", Fill: "#ff6b6b", Stroke: "#6a040f"},
		{ID: LayerProdes, Name: "Base de Dados PRODES", Fill: "#f28482", Stroke: "#84a59d"},
		{ID: LayerIpuca, Name: "Base de Dados IPUCA", Fill: "#caf0f8", Stroke: "#023e8a"},
		{ID: LayerHighways, Name: "Base de Dados de Rodovias", Fill: "#adb5bd", Stroke: "#212529"},
	}
	for i := range layers {
		layers[i].Order = i
		layers[i].Enabled = true
		layers[i].Opacity = 0.5
		layers[i].File = layers[i].ID + ".geojson"
	}
	return layers
}
