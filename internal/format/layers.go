package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/overlap"
	"github.com/joeblew999/plat-overlap/internal/service"
)

// DefaultRegistry returns a registry covering every layer of
// service.DefaultCatalog.
func DefaultRegistry(preservation PreservationTable) *Registry {
	if preservation == nil {
		preservation = DefaultPreservationTable()
	}
	r := NewRegistry()
	r.Register(service.LayerSicar, FormatterFunc(Sicar))
	r.Register(service.LayerZoning, FormatterFunc(Zoning))
	r.Register(service.LayerPhytoecology, Phytoecology{Table: preservation})
	r.Register(service.LayerProtectionArea, FormatterFunc(ProtectionArea))
	r.Register(service.LayerIndigenous, FormatterFunc(Indigenous))
	r.Register(service.LayerQuilombolas, FormatterFunc(Quilombolas))
	r.Register(service.LayerPaths, FormatterFunc(Paths))
	r.Register(service.LayerConservationUnits, FormatterFunc(ConservationUnits))
	r.Register(service.LayerMunicipalBoundaries, FormatterFunc(MunicipalBoundaries))
	r.Register(service.LayerSigef, FormatterFunc(Sigef))
	r.Register(service.LayerRuralSettlement, FormatterFunc(RuralSettlement))
	r.Register(service.LayerSnicTotal, FormatterFunc(SnicTotal))
	r.Register(service.LayerDeforestationMapbiomas, FormatterFunc(DeforestationMapbiomas))
	r.Register(service.LayerEmbargoes, FormatterFunc(Embargoes))
	r.Register(service.LayerProdes, FormatterFunc(Prodes))
	r.Register(service.LayerIpuca, FormatterFunc(Ipuca))
	r.Register(service.LayerHighways, FormatterFunc(Highways))
	return r
}

var sicarStatus = map[string]string{
	"at": "ativo",
	"ca": "cancelado",
	"pe": "pendente",
	"su": "suspenso",
}

// Sicar formats the property registry. Unknown status codes pass through.
func Sicar(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	car := rec.Attrs.First("cod_imovel", "car_number")
	if car == "" {
		car = rec.ID
	}
	status := rec.Attrs.First("ind_status", "status")
	if s, ok := sicarStatus[strings.ToLower(status)]; ok {
		status = s
	}
	it.Name = car
	it.Label = "Sicar - CAR: " + car
	it.Attributes = map[string]string{"status": status}
	return it
}

func Zoning(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	zone := rec.Attrs.First("zona", "zone", "nome", "name")
	it.Name = zone
	it.Label = "Zoneamento: " + zone
	it.Attributes = attrs(rec, "zona", "descricao")
	return it
}

// Phytoecology carries the preserved area of each overlap.
type Phytoecology struct {
	Table PreservationTable
}

// PhytoName returns the region name of a phyto-ecology record.
func PhytoName(rec layer.Record) string {
	return rec.Attrs.First("phyto_name", "nome", "name")
}

func (p Phytoecology) Format(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	name := PhytoName(rec)
	preserved := p.Table.PreservedArea(name, it.AreaHa)
	it.Name = name
	it.Label = name
	it.PreservedAreaHa = &preserved
	return it
}

// PhytoGroupLabel is the label of a phyto-ecology item merged by name.
func PhytoGroupLabel(name string) string {
	return "Regiões Fitoecológicas: " + name
}

func ProtectionArea(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	unit := rec.Attrs.First("unit_name", "unidade")
	domains := rec.Attrs.First("domains", "dominios")
	class := rec.Attrs.First("class_group", "classe")
	legal := rec.Attrs.First("legal_basis", "fundo_legal")

	var details []string
	if unit != "" {
		details = append(details, unit)
	}
	if domains != "" {
		details = append(details, "Domínios: "+domains)
	}
	if class != "" {
		details = append(details, "Classe: "+class)
	}
	if legal != "" {
		details = append(details, "Fundo Legal: "+legal)
	}

	it.Name = unit
	it.Label = "APA"
	if len(details) > 0 {
		it.Label = "APA: " + strings.Join(details, " | ")
	}
	it.Attributes = map[string]string{
		"unidade":     unit,
		"dominios":    domains,
		"classe":      class,
		"fundo_legal": legal,
	}
	return it
}

func Indigenous(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	name := rec.Attrs.First("terrai_nom", "nome", "name")
	it.Name = name
	it.Label = "Terra Indígena: " + name
	it.Attributes = attrs(rec, "etnia_nome", "fase_ti")
	return it
}

func Quilombolas(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, false)
	name := rec.Attrs.First("nome", "name")
	it.Name = name
	it.Label = "Quilombolas: " + name
	return it
}

func Paths(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	it.Label = "Vereda"
	it.Attributes = attrs(rec, "hash_id")
	return it
}

func ConservationUnits(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	unit := rec.Attrs.First("unit", "unidade")
	domain := rec.Attrs.First("domain", "dominio")
	it.Name = unit
	it.Label = fmt.Sprintf("Unidades de Conservação: %s - %s", unit, domain)
	it.Attributes = map[string]string{"unit": unit, "domain": domain}
	return it
}

func MunicipalBoundaries(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, false)
	name := rec.Attrs.First("name", "nome", "nm_mun")
	it.Name = name
	it.Label = "Município: " + name
	return it
}

func Sigef(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, false)
	name := rec.Attrs.First("name", "nome")
	it.Name = name
	it.Label = "Sigef: " + name
	it.Attributes = attrs(rec, "installment_code", "property_code", "status")
	return it
}

func RuralSettlement(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, false)
	it.Name = rec.Attrs.First("project_name", "nome_proje")
	it.Label = "Método de obtenção: " + rec.Attrs.First("method_obtaining", "forma_obte")
	return it
}

func SnicTotal(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, false)
	it.Name = rec.Attrs.First("property_name", "nome_imove")
	it.Label = "Código do imóvel: " + rec.Attrs.First("property_code", "codigo_imo")
	return it
}

func DeforestationMapbiomas(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	code := rec.Attrs.String("alert_code")
	year := rec.Attrs.String("detection_year")
	it.Name = "Alerta"
	if code != "" {
		it.Name = "Alerta " + code
	}
	it.Label = fmt.Sprintf("MapBiomas: Alerta %s | Ano: %s", code, year)
	it.Attributes = attrs(rec, "alert_code", "detection_year", "source")
	return it
}

func Embargoes(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	act := rec.Attrs.String("number_infraction_act")
	it.Name = rec.Attrs.String("property_name")
	it.Label = "Embargo: " + act
	it.Attributes = attrs(rec,
		"property_name", "type_area", "number_infraction_act", "nome_embargado",
		"cpf_cnpj_embargado", "control_unity", "process_number", "act_description",
		"infraction_description", "embargoe_date", "priting_date")
	return it
}

func Prodes(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	id := rec.Attrs.String("identification")
	year := rec.Attrs.String("year")
	it.Name = id
	it.Label = fmt.Sprintf("Prodes: %s - %s", id, year)
	it.Attributes = map[string]string{
		"identification": id,
		"year":           year,
		"satelite":       rec.Attrs.String("satelite"),
		"image_date":     FormatDate(rec.Attrs.String("image_date")),
	}
	return it
}

func Ipuca(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	it.Label = "Área IPUCA"
	return it
}

func Highways(rec layer.Record, res *overlap.Result) Item {
	it := newItem(rec, res, true)
	name := rec.Attrs.String("NOME_2011")
	it.Name = name
	it.Label = "Rodovia: " + name
	it.Attributes = attrs(rec, "NOME_2011", "CLAS_2011")
	return it
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FormatDate rewrites a database date as DD/MM/YYYY. Fractional seconds
// and zone suffixes are dropped; input that does not parse is returned
// unchanged.
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	v := s
	if i := strings.IndexByte(v, '.'); i > 0 {
		v = v[:i]
	}
	v = strings.TrimSuffix(v, "Z")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return s
}
