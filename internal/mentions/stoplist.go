package mentions

// stoplist holds uppercase normalized surfaces that never identify an entity
// on their own: function words, titles, weekdays, months and generic
// institutional nouns.
var stoplist = map[string]struct{}{
	"A": {}, "AL": {}, "CON": {}, "DE": {}, "DEL": {}, "EL": {}, "EN": {}, "LA": {}, "LAS": {},
	"LO": {}, "LOS": {}, "O": {}, "PARA": {}, "POR": {}, "QUE": {}, "SE": {}, "SIN": {}, "SU": {},
	"SUS": {}, "UN": {}, "UNA": {}, "Y": {}, "ESTE": {}, "ESTA": {}, "HOY": {}, "AYER": {},

	"GOBIERNO": {}, "ESTADO": {}, "MUNICIPIO": {}, "AYUNTAMIENTO": {}, "SECRETARIA": {},
	"DIRECCION": {}, "INSTITUTO": {}, "COMISION": {}, "CONSEJO": {}, "PARTIDO": {}, "CIUDAD": {},
	"GOBIERNO FEDERAL": {}, "GOBIERNO ESTATAL": {}, "GOBIERNO MUNICIPAL": {},

	"PRESIDENTE": {}, "PRESIDENTA": {}, "GOBERNADOR": {}, "GOBERNADORA": {}, "SECRETARIO": {},
	"DIPUTADO": {}, "DIPUTADA": {}, "SENADOR": {}, "SENADORA": {}, "ALCALDE": {}, "ALCALDESA": {},
	"DIRECTOR": {}, "DIRECTORA": {}, "REGIDOR": {}, "REGIDORA": {}, "FISCAL": {}, "MINISTRO": {},
	"LICENCIADO": {}, "DOCTOR": {}, "DOCTORA": {}, "INGENIERO": {}, "SENOR": {}, "SENORA": {},
	"PRESIDENTE MUNICIPAL": {}, "PRESIDENTA MUNICIPAL": {},

	"LUNES": {}, "MARTES": {}, "MIERCOLES": {}, "JUEVES": {}, "VIERNES": {}, "SABADO": {}, "DOMINGO": {},

	"ENERO": {}, "FEBRERO": {}, "MARZO": {}, "ABRIL": {}, "MAYO": {}, "JUNIO": {}, "JULIO": {},
	"AGOSTO": {}, "SEPTIEMBRE": {}, "SETIEMBRE": {}, "OCTUBRE": {}, "NOVIEMBRE": {}, "DICIEMBRE": {},
}
