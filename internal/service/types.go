// Package service holds the reference-layer catalog and the change-event bus.
package service

// LayerConfig describes one reference layer of the catalog.
// Huma reads the tags for OpenAPI and validation.
type LayerConfig struct {
	ID       string  `json:"id,omitempty" doc:"Unique layer identifier" example:"phytoecology"`
	Name     string  `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Friendly base name shown in reports" example:"Base de Dados de Fitoecologias"`
	File     string  `json:"file,omitempty" doc:"GeoJSON source file for the memory backend" example:"phytoecology.geojson"`
	IDField  string  `json:"idField,omitempty" doc:"Feature property holding the record id" example:"cod_imovel"`
	Fill     string  `json:"fill,omitempty" doc:"Fill color (CSS)" example:"#3388ff" default:"#3388ff"`
	Stroke   string  `json:"stroke,omitempty" doc:"Stroke color (CSS)" example:"#2266cc" default:"#2266cc"`
	Opacity  float64 `json:"opacity,omitempty" minimum:"0" maximum:"1" default:"0.5" doc:"Layer opacity (0-1)" example:"0.5"`
	Registry bool    `json:"registry" doc:"Primary property-registry layer; near-total overlaps are treated as the same parcel"`
	Enabled  bool    `json:"enabled" default:"true" doc:"Whether the layer takes part in analyses"`
	Order    int     `json:"order" doc:"Position in the catalog"`
}

// SourceFile represents a source data file (GeoJSON).
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"sicar.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
}
